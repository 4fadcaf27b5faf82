// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements the shared session-binding layer.

A binding maps an opaque session identifier to an identity digest. The same
binding is the single source of truth for every transport the process serves:
the HTTP API resolves it per request, the realtime gateway resolves it per
connection. Logging out through one transport is immediately visible to the
other.

# Architecture

  - Store: durable session state with TTL (Redis in production).
  - Binding: resolution logic, identifier normalization, and a short-lived
    in-process digest cache in front of the store.
  - Middleware: attaches the resolved digest to the request context.
*/
package session

import (
	"context"
	"time"

	"github.com/taibuivan/averi/internal/identity"
)

// Store persists session bindings.
type Store interface {
	// Get retrieves the digest bound to a session ID.
	//
	// # Returns
	//   - (*identity.Digest, nil): The binding.
	//   - (nil, nil): No binding exists; absence is not an error.
	//   - (nil, error): The store itself failed.
	Get(ctx context.Context, id string) (*identity.Digest, error)

	// Set binds a digest to a session ID with the given TTL.
	Set(ctx context.Context, id string, digest *identity.Digest, ttl time.Duration) error

	// Delete removes a binding. Deleting an absent binding is not an error.
	Delete(ctx context.Context, id string) error
}
