// Package server provides the HTTP transport for the question answering
// service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusqa/campusqa/internal/metrics"
	"github.com/campusqa/campusqa/internal/pkg/logger"
	"github.com/campusqa/campusqa/internal/pkg/middleware"
	"github.com/campusqa/campusqa/internal/qa"
)

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RequestTimeout bounds a single /api/request call, including the wait
	// for a concurrency permit.
	RequestTimeout time.Duration
	MetricsPath    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestTimeout:  90 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Answerer answers a single query.
type Answerer interface {
	Handle(ctx context.Context, q qa.Query) (*qa.Response, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the collaborators of a Server. Limiter and Metrics are optional.
type Deps struct {
	QA      Answerer
	Cache   Pinger
	Gate    *middleware.ConcurrencyGate
	Limiter *middleware.RateLimiter
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Server is the HTTP server.
type Server struct {
	cfg     Config
	qa      Answerer
	cache   Pinger
	gate    *middleware.ConcurrencyGate
	limiter *middleware.RateLimiter
	metrics *metrics.Metrics
	log     *logger.Logger

	handler    http.Handler
	httpServer *http.Server
	ready      atomic.Bool

	mu      sync.Mutex
	started bool
}

// New creates a new server.
func New(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	gate := deps.Gate
	if gate == nil {
		gate = middleware.NewConcurrencyGate(1)
	}

	s := &Server{
		cfg:     cfg,
		qa:      deps.QA,
		cache:   deps.Cache,
		gate:    gate,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		log:     log,
	}
	s.handler = s.routes()
	s.ready.Store(true)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// routes configures all HTTP routes.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.HTTPMiddleware(s.metrics, next)
		})
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/api/request", s.handleRequest)
	})

	return r
}

// Start listens on the configured address and blocks until the server is
// shut down. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.started = false
	s.log.Info("Server stopped")
	return err
}

// logRequests logs every request at debug level with its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.WithContext(r.Context()).Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
