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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/storage/sqlite"
	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/webauthn/http"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/passkey/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(logger)

	logger.Info("starting go-passkey server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID,
		"storage", cfg.Storage.Backend)

	rpConfig, err := cfg.WebAuthn.RelyingParty()
	if err != nil {
		logger.Error("invalid relying party policy", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()

	// Select the credential and handle stores.
	var (
		credentials webauthn.CredentialStore
		handles     webauthn.HandleStore
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			logger.Error("failed to open credential database", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
		credentials = store
		handles = store

		checker.RegisterCheck("sqlite", func(ctx context.Context) health.CheckResult {
			if err := store.Ping(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: "database reachable"}
		})
	default:
		credentials = webauthn.NewMemoryCredentialStore()
		handles = webauthn.NewMemoryHandleStore()
	}

	directory := webauthn.NewMemoryUserDirectory()
	for _, u := range cfg.Users {
		display := u.DisplayName
		if display == "" {
			display = u.Name
		}
		directory.Add(&webauthn.DirectoryUser{
			UserID:  u.ID,
			Name:    u.Name,
			Display: display,
		})
	}

	var issuer webauthn.TokenIssuer
	if cfg.Auth.JWTSecret != "" {
		jwtIssuer, err := webauthn.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL())
		if err != nil {
			logger.Error("failed to create token issuer", "error", err)
			os.Exit(1)
		}
		issuer = jwtIssuer
	}

	stateStore := webauthn.NewMemoryStateStore(rpConfig.ChallengeTTL)

	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:          rpConfig,
		StateStore:      stateStore,
		CredentialStore: credentials,
		HandleStore:     handles,
		UserDirectory:   directory,
		TokenIssuer:     issuer,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create relying party service", "error", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
		defer limiter.Stop()
	}

	server, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Handler:        passkeyhttp.NewHandler(svc).WithLogger(logger),
		Logger:         logger,
		HealthChecker:  checker,
		RateLimiter:    limiter,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		TLSCertFile:    cfg.TLS.CertFile,
		TLSKeyFile:     cfg.TLS.KeyFile,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler(logger)

	// Purge abandoned ceremonies and stale sync flags in the background.
	stateCleanup := stateStore.StartCleanupRoutine(shutdownCtx, time.Minute)
	defer stateCleanup()
	syncCleanup := svc.Sync().StartCleanupRoutine(shutdownCtx, time.Minute)
	defer syncCleanup()

	var collector *metrics.ResourceCollector
	if cfg.Metrics.Enabled {
		collector = metrics.StartResourceCollector(shutdownCtx, 15*time.Second)
		defer collector.Stop()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	checker.MarkStarted()
	logger.Info("server started", "port", cfg.Server.Port, "tls", cfg.TLS.Enabled)

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		logger.Error("server error", "error", err)
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	return ctx
}
