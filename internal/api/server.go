// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/config"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/platform/middleware"
	"github.com/taibuivan/averi/internal/session"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles the account lifecycle routes (register, confirm, login, logout, me).
	Auth *identity.Handler

	// Realtime is the WebSocket gateway sharing the session binding.
	Realtime http.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
//
// # Context Lifetime
//
// The context must live for the whole process, not just startup: it drives
// the rate limiter's background cleanup, which stops when the context is
// cancelled.
//
// # Session Resolution
//
// session.Authenticate sits in the global chain so every route (and the
// WebSocket upgrade) sees the same resolved identity. Rejection is local:
// only routes wrapped in session.RequireAuth turn anonymity into a 401.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, binding *session.Binding, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(session.Authenticate(binding))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Request-Scoped Routes
	// Everything except the realtime upgrade runs under the global deadline.
	r.Group(func(scoped chi.Router) {
		scoped.Use(chimw.Timeout(constants.GlobalRequestTimeout))

		// Unauthenticated health probes for container orchestration.
		scoped.Get("/health", h.Liveness)
		scoped.Get("/ready", h.Readiness)

		// Domain-specific route groups mounted under versioned prefix.
		scoped.Route("/api/v1", func(api chi.Router) {
			api.Mount("/auth", h.Auth.Routes(session.RequireAuth))
		})
	})

	// # Realtime Transport
	// Mounted outside the timeout group: the connection outlives any request
	// deadline, and the gateway manages its own read/write timeouts.
	if h.Realtime != nil {
		r.Handle("/ws", h.Realtime)
	}

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
