// Package adminapi exposes the route registry over HTTP:
//
//	POST /services  register a route, body {"path": ..., "backends": [...]}
//	GET  /services  list routes
//	GET  /resolve   longest-prefix match of ?path= against the local table
//	GET  /healthz   liveness, optionally backed by a transport ping
//	GET  /metrics   Prometheus exposition
package adminapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address. Default: ":4000"
	Addr string

	Logger *slog.Logger

	// Registerer and Gatherer back the request metrics and /metrics.
	// Default: a fresh registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// Health, when set, is consulted by /healthz.
	Health func(ctx context.Context) error

	// Resolver, when set, enables /resolve.
	Resolver Resolver
}

// Server is the admin HTTP server.
type Server struct {
	handlers   *Handlers
	middleware *Middleware
	gatherer   prometheus.Gatherer
	server     *http.Server
	logger     *slog.Logger
}

// NewServer creates a server in front of registry.
func NewServer(registry Registry, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":4000"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registerer == nil || cfg.Gatherer == nil {
		reg := prometheus.NewRegistry()
		cfg.Registerer, cfg.Gatherer = reg, reg
	}

	s := &Server{
		handlers:   NewHandlers(registry, cfg.Health, cfg.Resolver),
		middleware: NewMiddleware(cfg.Logger, NewMetrics(cfg.Registerer)),
		gatherer:   cfg.Gatherer,
		logger:     cfg.Logger,
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	with := func(endpoint string, handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.RequestID(
				s.middleware.Logging(
					s.middleware.Instrument(endpoint, handler))))
	}

	mux.Handle("POST /services", with("/services", s.handlers.RegisterService))
	mux.Handle("GET /services", with("/services", s.handlers.ListServices))
	if s.handlers.resolver != nil {
		mux.Handle("GET /resolve", with("/resolve", s.handlers.Resolve))
	}
	mux.Handle("GET /healthz", with("/healthz", s.handlers.Health))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start serves until Stop. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info("admin api listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
