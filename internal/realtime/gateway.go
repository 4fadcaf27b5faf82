// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package realtime implements the long-lived WebSocket transport.

# Architecture

The gateway shares the session binding with the HTTP API: the identity of a
connection is resolved from the same cookie, against the same store, at accept
time. A connection without a resolvable session is served anonymously rather
than rejected, so public realtime features keep working for logged-out
visitors.
*/
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/session"
)

const (
	// maxFrameBytes bounds a single inbound frame.
	maxFrameBytes = 32 * 1024

	// writeTimeout bounds a single outbound write.
	writeTimeout = 5 * time.Second

	// readIdleTimeout closes connections that send nothing for too long.
	readIdleTimeout = 5 * time.Minute

	// heartbeatInterval is how often the server pings the peer.
	heartbeatInterval = 30 * time.Second

	// heartbeatTimeout bounds the wait for a pong.
	heartbeatTimeout = 10 * time.Second
)

// Envelope is the JSON frame exchanged over the socket.
type Envelope struct {
	// Type selects the operation ("ping", "whoami").
	Type string `json:"type"`

	// Message carries the human-readable payload of server frames.
	Message string `json:"message,omitempty"`

	// User is the identity digest attached to identity-bearing frames.
	// Nil for anonymous connections.
	User *identity.Digest `json:"user,omitempty"`
}

// Gateway upgrades HTTP requests to WebSocket connections and serves the
// realtime message loop.
type Gateway struct {
	binding        *session.Binding
	log            *slog.Logger
	originPatterns []string
}

// NewGateway constructs a [Gateway] sharing the given session binding.
//
// # Parameters
//   - binding: The session layer shared with the HTTP transport.
//   - logger: Structured logger for connection events.
//   - originPatterns: Host patterns authorized for cross-origin upgrades.
func NewGateway(binding *session.Binding, logger *slog.Logger, originPatterns []string) *Gateway {
	return &Gateway{
		binding:        binding,
		log:            logger,
		originPatterns: originPatterns,
	}
}

// ServeHTTP upgrades the request and runs the connection loop.
//
// # Identity
//
// The session cookie is resolved once, at accept time. A missing or invalid
// session degrades the connection to anonymous; it is never a reason to
// refuse the upgrade.
func (gateway *Gateway) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	digest := gateway.resolveIdentity(request)

	conn, err := websocket.Accept(writer, request, &websocket.AcceptOptions{
		OriginPatterns: gateway.originPatterns,
	})
	if err != nil {
		gateway.log.Info("ws_accept_rejected",
			slog.String("remote", request.RemoteAddr),
			slog.Any("error", err),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection teardown")

	conn.SetReadLimit(maxFrameBytes)

	gateway.log.Info("ws_connected",
		slog.String("remote", request.RemoteAddr),
		slog.Bool("authenticated", digest != nil),
	)

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	// ── Heartbeat ─────────────────────────────────────────────────────────

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, heartbeatTimeout)
				err := conn.Ping(pingCtx)
				pingCancel()

				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// ── Message Loop ──────────────────────────────────────────────────────

	status := gateway.serve(ctx, conn, digest)
	cancel()
	<-heartbeatDone

	conn.Close(status, "")
}

// serve runs the read loop until the peer disconnects or errs out.
func (gateway *Gateway) serve(ctx context.Context, conn *websocket.Conn, digest *identity.Digest) websocket.StatusCode {
	for {
		readCtx, readCancel := context.WithTimeout(ctx, readIdleTimeout)
		var frame Envelope
		err := wsjson.Read(readCtx, conn, &frame)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return websocket.StatusNormalClosure
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return websocket.StatusGoingAway
			}
			return websocket.StatusAbnormalClosure
		}

		reply := gateway.handleFrame(frame, digest)
		if err := writeFrame(ctx, conn, reply); err != nil {
			return websocket.StatusAbnormalClosure
		}
	}
}

// handleFrame maps an inbound frame to its reply.
func (gateway *Gateway) handleFrame(frame Envelope, digest *identity.Digest) Envelope {
	switch frame.Type {
	case "ping":
		return Envelope{
			Type:    "pong",
			Message: greeting(digest),
			User:    digest,
		}

	case "whoami":
		if digest == nil {
			return Envelope{Type: "whoami", Message: "anonymous"}
		}
		return Envelope{Type: "whoami", User: digest}

	default:
		return Envelope{
			Type:    "error",
			Message: fmt.Sprintf("unsupported type: %q", frame.Type),
		}
	}
}

// resolveIdentity maps the request's session cookie to a digest, or nil.
func (gateway *Gateway) resolveIdentity(request *http.Request) *identity.Digest {
	cookie, err := request.Cookie(constants.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return gateway.binding.Resolve(request.Context(), cookie.Value)
}

// greeting names the connected user, or falls back for anonymous peers.
func greeting(digest *identity.Digest) string {
	if digest == nil {
		return "hello, unauthenticated user"
	}
	return "hello, " + digest.Name
}

// writeFrame writes a single frame under the write timeout.
func writeFrame(parent context.Context, conn *websocket.Conn, frame Envelope) error {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, frame)
}
