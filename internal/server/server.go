// Package server exposes the orchestrator over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/metrics"
	"github.com/allaspectsdev/genrelay/internal/orchestrator"
	"github.com/allaspectsdev/genrelay/internal/store"
	"github.com/allaspectsdev/genrelay/internal/tokenizer"
	"github.com/allaspectsdev/genrelay/internal/tracing"
)

// Options wires a Server. Executor, Catalog and Collector are required.
type Options struct {
	Executor  *orchestrator.Executor
	Catalog   *catalog.Catalog
	Collector *metrics.Collector
	// Store persists generation history when non-nil.
	Store     *store.Store
	Tokenizer *tokenizer.Tokenizer
	Recent    *RecentResults
	// Temperatures supplies the default temperature per task type when a
	// request omits one.
	Temperatures orchestrator.Temperatures
	Config       *config.Config
	Logger       *zerolog.Logger
}

// Server is the genrelay HTTP API. It binds the chi router to the
// configured address and supports graceful shutdown.
type Server struct {
	router    chi.Router
	httpSrv   *http.Server
	executor  *orchestrator.Executor
	catalog   *catalog.Catalog
	collector *metrics.Collector
	store     *store.Store
	tokenizer *tokenizer.Tokenizer
	recent    *RecentResults
	temps     orchestrator.Temperatures
	cfg       *config.Config
	maxBody   int64
	logger    zerolog.Logger

	// genDeadline bounds one generation so its response is written before
	// the connection's write deadline. Zero means no bound.
	genDeadline time.Duration
	baseCtx     context.Context
	cancelBase  context.CancelFunc
	inflight    sync.WaitGroup
}

// New builds a Server from opts.
func New(opts Options) (*Server, error) {
	if opts.Executor == nil || opts.Catalog == nil || opts.Collector == nil {
		return nil, errors.New("server: executor, catalog and collector are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	recent := opts.Recent
	if recent == nil {
		var err error
		if recent, err = NewRecentResults(DefaultRecentResults); err != nil {
			return nil, err
		}
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.New()
	}
	temps := opts.Temperatures
	if temps == (orchestrator.Temperatures{}) {
		temps = orchestrator.DefaultTemperatures()
	}
	maxBody := cfg.Server.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		executor:  opts.Executor,
		catalog:   opts.Catalog,
		collector: opts.Collector,
		store:     opts.Store,
		tokenizer: tok,
		recent:    recent,
		temps:     temps,
		cfg:       cfg,
		maxBody:   maxBody,
		logger:    logger.With().Str("component", "server").Logger(),

		genDeadline: generationDeadline(time.Duration(cfg.Server.WriteTimeout) * time.Second),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	if cfg.Tracing.Enabled {
		r.Use(tracing.HTTPMiddleware)
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled && cfg.Auth.Token != "" {
			r.Use(AuthMiddleware(cfg.Auth.Token))
		}
		r.Post("/api/generate", s.handleGenerate)
		r.Get("/api/generations", s.handleListGenerations)
		r.Get("/api/generations/{id}", s.handleGetGeneration)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/telemetry", s.handleTelemetry)
		r.Get("/api/telemetry/attempts", s.handleAttempts)
		r.Post("/api/telemetry/cleanup", s.handleCleanup)
		r.Get("/api/providers", s.handleProviders)
		r.Get("/api/config", s.handleGetConfig)
	})

	s.router = r
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}
	return s, nil
}

// generationDeadline leaves a tenth of the write timeout, at most five
// seconds, for writing the response.
func generationDeadline(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	return writeTimeout - min(writeTimeout/10, 5*time.Second)
}

// Router returns the underlying chi.Router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

// Start listens for HTTP connections. It blocks until the server is shut
// down or fails.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("API server starting")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// StartTLS is Start over HTTPS.
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("API server starting (TLS)")
	if err := s.httpSrv.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server (TLS): %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight generations
// until ctx ends. Generations still running then are cancelled, and
// Shutdown returns once they have recorded their outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("grace period expired, cancelling in-flight generations")
	}
	s.cancelBase()
	s.inflight.Wait()
	return err
}
