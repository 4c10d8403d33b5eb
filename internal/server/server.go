// Package server exposes the pipeline over HTTP: ingestion, template
// extraction, matching and the cluster visualization, all JSON.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mtmatch/internal/analysis"
	"mtmatch/internal/config"
	"mtmatch/internal/embedding"
	"mtmatch/internal/logger"
	"mtmatch/internal/matching"
	"mtmatch/internal/pipeline"
	"mtmatch/internal/store"
	"mtmatch/internal/templates"
	"mtmatch/internal/vectorstore"
)

// Deps bundles everything the handlers reach into.
type Deps struct {
	Store     *store.Store
	Vectors   vectorstore.Store
	Pipeline  *pipeline.Pipeline
	Extractor *templates.Extractor
	Matcher   *matching.Matcher
	Embedder  *embedding.Service
	Analyzer  analysis.Analyzer
	Config    *config.Service
}

// Server is the HTTP front of the matching pipeline.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	cfg        config.Server
	log        *slog.Logger
}

// New builds the server with middleware and routes wired.
func New(deps Deps, cfg config.Server) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		cfg:    cfg,
		log:    logger.Get(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.WriteTimeout))

	if s.cfg.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.handleIngestMessage)
			r.Post("/upload", s.handleBulkUpload)
			r.Get("/", s.handleListMessages)
			r.Get("/unmatched", s.handleUnmatchedMessages)
			r.Get("/statistics", s.handleMessageStatistics)
			r.Get("/{id}", s.handleGetMessage)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/extract", s.handleExtractTemplates)
			r.Get("/", s.handleListTemplates)
			r.Get("/statistics", s.handleTemplateStatistics)
			r.Get("/type/{messageType}", s.handleTemplatesByType)
			r.Post("/test-match", s.handleTestMatch)
			r.Post("/analyze-content", s.handleAnalyzeContent)
			r.Get("/{id}", s.handleGetTemplate)
			r.Get("/{id}/messages", s.handleTemplateMessages)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/match/{messageId}", s.handleMatch)
			r.Post("/preview-match", s.handlePreviewMatch)
			r.Get("/", s.handleListTransactions)
			r.Get("/statistics", s.handleTransactionStatistics)
			r.Post("/{id}/reanalyze", s.handleReanalyze)
			r.Get("/{id}", s.handleGetTransaction)
		})

		r.Get("/clusters/visualize", s.handleVisualizeClusters)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
	})
}

// requireToken enforces the bearer token on every /api route. An empty
// configured token disables the API entirely rather than opening it up.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			s.respondError(w, r, http.StatusForbidden, "API disabled: no auth token configured")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.AuthToken {
			s.respondError(w, r, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until the context is cancelled, then drains with the write
// timeout as the grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }
