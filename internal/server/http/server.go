// Package httpserver provides the HTTP REST API for the paper search service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/retrieval"
)

// Searcher runs one paper search. *retrieval.Aggregator implements it.
type Searcher interface {
	Retrieve(ctx context.Context, query domain.Query, cfg retrieval.Config) (*domain.SearchResult, error)
}

// ReadinessCheck reports whether the service can serve searches.
type ReadinessCheck func(ctx context.Context) error

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	searcher   Searcher
	search     retrieval.Config
	validate   *validator.Validate
	ready      ReadinessCheck
	logger     zerolog.Logger
	origins    []string
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins lists CORS origins. Empty disables cross-origin access.
	AllowedOrigins []string
}

// Option customizes a Server.
type Option func(*Server)

// WithReadinessCheck sets the check behind /readyz. Without it the
// server is ready as soon as it is listening.
func WithReadinessCheck(check ReadinessCheck) Option {
	return func(s *Server) { s.ready = check }
}

// NewServer creates a new HTTP server. search is the base configuration
// applied to every request before per-request overrides.
func NewServer(cfg Config, searcher Searcher, search retrieval.Config, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		searcher: searcher,
		search:   search,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "http-server").Logger(),
		origins:  cfg.AllowedOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Correlation-ID", "X-Search-ID"},
		MaxAge:         300,
	}).Handler)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.searchPapers)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether searches can be served.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
