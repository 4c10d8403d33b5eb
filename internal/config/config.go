// Package config loads the static configuration tree via viper and layers
// runtime overrides from the document store's system_configuration collection
// on top, with a cache that is invalidated on every update.
package config

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mtmatch/internal/store"
)

// Clustering holds the K-means hyperparameters.
type Clustering struct {
	MaxIterations        int     `mapstructure:"max_iterations"`
	MinClusters          int     `mapstructure:"min_clusters"`
	MaxClusters          int     `mapstructure:"max_clusters"`
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
}

// Embeddings holds the embedding provider settings.
type Embeddings struct {
	ModelName string `mapstructure:"model_name"`
	Dimension int    `mapstructure:"dimension"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Similarity holds the matching thresholds.
type Similarity struct {
	Threshold            float64 `mapstructure:"threshold"`
	AutoApproveThreshold float64 `mapstructure:"auto_approve_threshold"`
}

// Template holds the extraction gates.
type Template struct {
	MinMessagesForTemplate int  `mapstructure:"min_messages_for_template"`
	MaxTemplatesPerPair    int  `mapstructure:"max_templates_per_pair"`
	AutoGenerate           bool `mapstructure:"auto_generate"`
}

// CORS holds the cross-origin settings for the HTTP server.
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server holds the HTTP server settings.
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	AuthToken    string        `mapstructure:"auth_token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         CORS          `mapstructure:"cors"`
}

// App holds general application settings.
type App struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Config is the full static configuration tree.
type Config struct {
	App        App        `mapstructure:"app"`
	Clustering Clustering `mapstructure:"clustering"`
	Embeddings Embeddings `mapstructure:"embeddings"`
	Similarity Similarity `mapstructure:"similarity"`
	Template   Template   `mapstructure:"template"`
	Server     Server     `mapstructure:"server"`
}

func setDefaults() {
	viper.SetDefault("app.data_dir", ".mtmatch")
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("clustering.max_iterations", 100)
	viper.SetDefault("clustering.min_clusters", 2)
	viper.SetDefault("clustering.max_clusters", 10)
	viper.SetDefault("clustering.convergence_threshold", 0.001)
	viper.SetDefault("embeddings.model_name", "gemini-embedding-001")
	viper.SetDefault("embeddings.dimension", 384)
	viper.SetDefault("embeddings.cache_size", 10000)
	viper.SetDefault("similarity.threshold", 0.85)
	viper.SetDefault("similarity.auto_approve_threshold", 0.95)
	viper.SetDefault("template.min_messages_for_template", 3)
	viper.SetDefault("template.max_templates_per_pair", 3)
	viper.SetDefault("template.auto_generate", true)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.cors.enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
}

// Load reads .env, the optional config file, and environment overrides, and
// unmarshals the full tree.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	setDefaults()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mtmatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.mtmatch")
	}
	viper.SetEnvPrefix("MTMATCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Service resolves configuration keys with runtime overrides from the
// document store layered over the static tree. Resolved values are cached;
// Set invalidates the cache so updates take effect immediately.
type Service struct {
	static *Config
	store  *store.Store

	mu    sync.RWMutex
	cache map[string]string
}

// NewService creates a config service over the static tree and the store.
func NewService(static *Config, st *store.Store) *Service {
	return &Service{static: static, store: st, cache: make(map[string]string)}
}

// Static returns the static tree (defaults + file + env).
func (s *Service) Static() *Config { return s.static }

// Get resolves a dotted key, preferring runtime overrides. The second return
// is false when the key resolves to nothing anywhere.
func (s *Service) Get(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, true
	}
	s.mu.RUnlock()

	if s.store != nil {
		if v, ok, err := s.store.GetConfigValue(ctx, key); err == nil && ok {
			s.mu.Lock()
			s.cache[key] = v
			s.mu.Unlock()
			return v, true
		}
	}
	if viper.IsSet(key) {
		v := viper.GetString(key)
		s.mu.Lock()
		s.cache[key] = v
		s.mu.Unlock()
		return v, true
	}
	return "", false
}

// GetFloat resolves a key as float64, falling back to def.
func (s *Service) GetFloat(ctx context.Context, key string, def float64) float64 {
	if v, ok := s.Get(ctx, key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetInt resolves a key as int, falling back to def.
func (s *Service) GetInt(ctx context.Context, key string, def int) int {
	if v, ok := s.Get(ctx, key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetBool resolves a key as bool, falling back to def.
func (s *Service) GetBool(ctx context.Context, key string, def bool) bool {
	if v, ok := s.Get(ctx, key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Set persists a runtime override and invalidates the cache.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if s.store == nil {
		return fmt.Errorf("no configuration store attached")
	}
	if err := s.store.SetConfigValue(ctx, key, value); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Invalidate drops every cached value.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// All returns the effective overrides currently persisted.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	if s.store == nil {
		return map[string]string{}, nil
	}
	return s.store.AllConfigValues(ctx)
}
