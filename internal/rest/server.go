// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/webauthn/http"
)

// APIPrefix is the path the ceremony endpoints are mounted under.
const APIPrefix = "/api/v1/passkey"

// Server is the relying party REST server.
type Server struct {
	server      *http.Server
	handler     *passkeyhttp.Handler
	logger      *slog.Logger
	checker     *health.Checker
	limiter     *ratelimit.Limiter
	port        int
	tlsCertFile string
	tlsKeyFile  string
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the listen address (default: all interfaces)
	Host string

	// Port is the port to listen on (default: 8443)
	Port int

	// Handler serves the passkey ceremony endpoints. Required.
	Handler *passkeyhttp.Handler

	// Logger receives request logs (optional, defaults to slog.Default)
	Logger *slog.Logger

	// HealthChecker backs the /health endpoints (optional)
	HealthChecker *health.Checker

	// RateLimiter throttles clients when enabled (optional)
	RateLimiter *ratelimit.Limiter

	// MetricsEnabled exposes Prometheus metrics at MetricsPath
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics)
	MetricsPath string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set. WebAuthn
	// requires a secure context, so plain HTTP is only useful behind a
	// TLS-terminating proxy or on localhost.
	TLSCertFile string
	TLSKeyFile  string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("ceremony handler is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		handler:     cfg.Handler,
		logger:      logger,
		checker:     cfg.HealthChecker,
		limiter:     cfg.RateLimiter,
		port:        cfg.Port,
		tlsCertFile: cfg.TLSCertFile,
		tlsKeyFile:  cfg.TLSKeyFile,
	}

	router := server.setupRouter(cfg)

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)

	// Legacy health endpoint (backwards compatibility)
	r.Get("/health", s.LivenessHandler)
	r.Head("/health", s.LivenessHandler)

	// Kubernetes-style health probes
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)
	r.Get("/health/startup", s.StartupHandler)

	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	// The related origins document must live at the site root.
	passkeyhttp.MountWellKnown(r, s.handler)

	r.Route(APIPrefix, func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		passkeyhttp.MountChi(r, s.handler)
	})

	return r
}

// Start starts the REST server. It blocks until the server is shut down.
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("starting HTTPS server", "port", s.port)

		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("starting HTTP server", "port", s.port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.port
}

// Router returns the configured handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
