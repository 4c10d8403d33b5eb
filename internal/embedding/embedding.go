// Package embedding maps text to unit-normalized 384-dim vectors and provides
// the vector math the clustering and matching stages are built on.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/genai"

	"mtmatch/internal/logger"
)

const (
	// DefaultModel is the default Gemini embedding model.
	DefaultModel = "gemini-embedding-001"
	// DefaultDimension is the embedding dimension (Matryoshka truncation).
	DefaultDimension = 384
	// DefaultCacheSize bounds the LRU embedding cache.
	DefaultCacheSize = 10000

	// cacheKeyLen: cache entries are keyed by the first 100 characters of
	// the input.
	cacheKeyLen = 100
)

// Options configures a Service.
type Options struct {
	Model     string
	Dimension int
	CacheSize int
}

func (o *Options) applyDefaults() {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
}

// Service produces embeddings via Gemini, falling back to a deterministic
// word-hash projection when no model is reachable so the pipeline stays
// end-to-end testable. Fallback similarity magnitudes do not match the
// model's; callers must not depend on them.
type Service struct {
	client *genai.Client
	opts   Options
	cache  *lru.Cache[string, []float64]
	log    *slog.Logger

	mu       sync.Mutex
	degraded bool
}

// NewService creates an embedding service. A nil client means fallback-only
// operation (used by tests and offline deployments).
func NewService(client *genai.Client, opts Options) (*Service, error) {
	opts.applyDefaults()
	cache, err := lru.New[string, []float64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Service{
		client: client,
		opts:   opts,
		cache:  cache,
		log:    logger.Get(),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int { return s.opts.Dimension }

// Degraded reports whether the service has fallen back to the deterministic
// projection at least once. Matches computed in degraded mode are flagged in
// transaction metadata.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Service) markDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		s.degraded = true
		s.log.Warn("embedding model unavailable, using deterministic fallback projection")
	}
}

func cacheKey(text string) string {
	if len(text) > cacheKeyLen {
		return text[:cacheKeyLen]
	}
	return text
}

// Embed maps text to a unit-normalized vector. Empty input returns the zero
// vector. Results are cached by the first 100 characters of the input.
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float64, s.opts.Dimension), nil
	}

	key := cacheKey(text)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	var vec []float64
	if s.client != nil {
		remote, err := s.embedRemote(ctx, text)
		if err == nil {
			vec = remote
		} else {
			s.markDegraded()
		}
	} else {
		s.markDegraded()
	}
	if vec == nil {
		vec = s.fallbackEmbed(text)
	}

	vec = Normalize(vec)
	s.cache.Add(key, vec)
	return vec, nil
}

func (s *Service) embedRemote(ctx context.Context, text string) ([]float64, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := int32(s.opts.Dimension)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	resp, err := s.client.Models.EmbedContent(ctx, s.opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	vec := make([]float64, len(values))
	for i, v := range values {
		vec[i] = float64(v)
	}
	if len(vec) != s.opts.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), s.opts.Dimension)
	}
	return vec, nil
}

// fallbackEmbed projects text onto word-hash sinusoids. Deterministic for a
// given input, so tests and degraded deployments keep stable geometry.
func (s *Service) fallbackEmbed(text string) []float64 {
	vec := make([]float64, s.opts.Dimension)
	words := strings.Fields(strings.ToLower(text))
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		seed := h.Sum64()
		for i := range vec {
			phase := float64(seed%100000)/100000.0*2*math.Pi + float64(i)*0.1
			vec[i] += math.Sin(phase) / math.Sqrt(float64(len(words))+1)
		}
	}
	return vec
}

// FieldSimilarity scores how well a message value fits a template value.
// The template's fixed content (placeholders and long digit runs stripped)
// is compared semantically and textually; a pure-variable field scores 0.95.
func (s *Service) FieldSimilarity(ctx context.Context, templateVal, messageVal string) (float64, error) {
	fixed := StripPlaceholders(templateVal)
	if fixed == "" {
		return 0.95, nil
	}
	tv, err := s.Embed(ctx, fixed)
	if err != nil {
		return 0, err
	}
	mv, err := s.Embed(ctx, messageVal)
	if err != nil {
		return 0, err
	}
	sim := 0.6*Cosine(tv, mv) + 0.4*TextSimilarity(fixed, messageVal)
	return clamp01(sim), nil
}
