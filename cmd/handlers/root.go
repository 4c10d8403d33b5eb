// Package handlers holds the CLI commands: serve, ingest and extract.
package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"mtmatch/internal/analysis"
	"mtmatch/internal/config"
	"mtmatch/internal/embedding"
	"mtmatch/internal/logger"
	"mtmatch/internal/matching"
	"mtmatch/internal/pipeline"
	"mtmatch/internal/server"
	"mtmatch/internal/store"
	"mtmatch/internal/templates"
	"mtmatch/internal/vectorstore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mtmatch",
	Short: "mtmatch discovers recurring SWIFT MT7xx templates and matches new messages against them",
	Long: `mtmatch ingests SWIFT MT7xx documentary-credit messages, embeds them,
discovers per-trading-pair templates through clustering, and matches new
messages against the discovered templates with per-field confidence scores.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mtmatch.yaml)")
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewExtractCmd())
}

// app bundles everything a command needs, plus the store handle to close.
type app struct {
	cfg   *config.Config
	cfgs  *config.Service
	store *store.Store
	deps  server.Deps
}

func (a *app) Close() error { return a.store.Close() }

// buildApp loads configuration and wires the full dependency graph. The
// Gemini client is optional: without GEMINI_API_KEY the embedder runs its
// deterministic fallback and the analyzer degrades to the sentinel.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	vs, err := vectorstore.NewSQLiteStore(st.DB(), cfg.Embeddings.Dimension)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	var client *genai.Client
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
	} else {
		logger.Get().Warn("GEMINI_API_KEY not set, running with fallback embeddings and sentinel analysis")
	}

	embedder, err := embedding.NewService(client, embedding.Options{
		Model:     cfg.Embeddings.ModelName,
		Dimension: cfg.Embeddings.Dimension,
		CacheSize: cfg.Embeddings.CacheSize,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	var analyzer analysis.Analyzer
	if client != nil {
		analyzer = analysis.NewGeminiAnalyzer(client, "")
	}

	cfgs := config.NewService(cfg, st)
	deps := server.Deps{
		Store:     st,
		Vectors:   vs,
		Pipeline:  pipeline.NewPipeline(st, vs, embedder),
		Extractor: templates.NewExtractor(st, vs, cfgs, time.Now().UnixNano()),
		Matcher:   matching.NewMatcher(st, vs, embedder, analyzer, cfgs),
		Embedder:  embedder,
		Analyzer:  analyzer,
		Config:    cfgs,
	}
	return &app{cfg: cfg, cfgs: cfgs, store: st, deps: deps}, nil
}
