// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Averi HTTP and realtime API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire the identity service, session binding, and realtime gateway.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taibuivan/averi/internal/api"
	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/config"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/platform/migration"
	pgstore "github.com/taibuivan/averi/internal/platform/postgres"
	redisstore "github.com/taibuivan/averi/internal/platform/redis"
	"github.com/taibuivan/averi/internal/platform/sec"
	"github.com/taibuivan/averi/internal/realtime"
	"github.com/taibuivan/averi/internal/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "averi"))
	slog.SetDefault(log)

	log.Info("[Averi] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "averi"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Process context: lives until shutdown. Long-running background work
	// (rate-limiter cleanup) hangs off this one, never off the startup
	// deadline below.
	processCtx, processCancel := context.WithCancel(context.Background())
	defer processCancel()

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(processCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	hasher := identity.NewHasher(identity.CryptoParams{
		Iterations: cfg.HashIterations,
		SaltLength: cfg.HashSaltLength,
		KeyLength:  cfg.HashKeyLength,
	})
	signer := sec.NewSigner(cfg.SessionSecret)
	mailer := identity.NewLogMailer(log)

	repository := identity.NewPostgresRepository(pool)
	authService := identity.NewService(repository, hasher, signer, mailer, cfg.PublicBaseURL, log)

	sessionStore := session.NewRedisStore(rdb)
	binding := session.NewBinding(sessionStore, session.DefaultNormalizer, log)

	authHandler := identity.NewHandler(authService, binding)
	gateway := realtime.NewGateway(binding, log, originPatterns(cfg))

	// ── 8. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Realtime:  gateway,
	}

	server := api.NewServer(processCtx, cfg, log, binding, handlers)

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Drain background crypto upgrades before the pool closes.
	authService.Wait()

	log.Info("server stopped cleanly")
}

// originPatterns derives WebSocket origin host patterns from configuration.
//
// Development authorizes any origin; production authorizes the app domain
// plus any extra configured hosts.
func originPatterns(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}

	patterns := []string{"averi.app", "*.averi.app"}
	for _, host := range strings.Split(cfg.ExtraOrigins, ",") {
		host = strings.TrimSpace(host)
		if host != "" {
			patterns = append(patterns, host)
		}
	}
	return patterns
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
