// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/internal/platform/ctxutil"
	"github.com/taibuivan/averi/internal/platform/sec"
)

// Normalizer converts a transport-specific session identifier into the
// canonical form used as the store key.
//
// Different transports decorate the identifier differently (signed cookies,
// connection handshake fields). Plugging the normalizer here keeps every
// transport resolving against the same store keys.
type Normalizer func(raw string) string

// DefaultNormalizer strips the "s:" signed-cookie prefix and truncates at the
// first '.' separator, so "s:<id>.<signature>" and a bare "<id>" both resolve
// to the same binding.
func DefaultNormalizer(raw string) string {
	if len(raw) >= 2 && raw[:2] == "s:" {
		raw = raw[2:]
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == '.' {
			return raw[:i]
		}
	}
	return raw
}

// cacheEntry is a cached digest with its expiry instant.
type cacheEntry struct {
	digest    *identity.Digest
	expiresAt time.Time
}

// Binding resolves session identifiers to identity digests.
//
// # Caching
//
// Resolution sits on the hot path of every request and every realtime frame,
// so resolved digests are cached in-process for a short window. The cache
// bounds how long a cleared session can still resolve on another instance;
// the window is deliberately short (see constants.SessionCacheTTL).
type Binding struct {
	store     Store
	normalize Normalizer
	ttl       time.Duration
	log       *slog.Logger

	mu        sync.RWMutex
	cache     map[string]cacheEntry
	cacheTTL  time.Duration
	lastSweep time.Time
}

// NewBinding constructs a [Binding] over the given store.
//
// # Parameters
//   - store: Durable session state.
//   - normalize: Identifier normalization. Nil selects [DefaultNormalizer].
//   - logger: Structured logger for store faults.
func NewBinding(store Store, normalize Normalizer, logger *slog.Logger) *Binding {
	if normalize == nil {
		normalize = DefaultNormalizer
	}
	return &Binding{
		store:     store,
		normalize: normalize,
		ttl:       constants.SessionTTL,
		log:       logger,
		cache:     make(map[string]cacheEntry),
		cacheTTL:  constants.SessionCacheTTL,
	}
}

/*
Establish creates a new session bound to the digest and returns its ID.

Description: The identifier is freshly random per login; it carries no
user-derived structure. The caller transports it (cookie, handshake) however
it likes, as long as resolution goes back through this binding.

Parameters:
  - context: context.Context
  - digest: *identity.Digest

Returns:
  - string: The new session identifier
  - error: Store failures
*/
func (binding *Binding) Establish(context context.Context, digest *identity.Digest) (string, error) {
	id := sec.NewSessionID(constants.SessionIDLength)

	if err := binding.store.Set(context, id, digest, binding.ttl); err != nil {
		return "", err
	}

	binding.mu.Lock()
	binding.cache[id] = cacheEntry{digest: digest, expiresAt: time.Now().Add(binding.cacheTTL)}
	binding.mu.Unlock()

	return id, nil
}

/*
Resolve maps a raw transport identifier to its identity digest.

Description: Every failure mode degrades to nil (anonymous): unknown ID,
expired binding, and store fault all look the same to the caller. Store
faults are logged; an unreachable session store must not turn every request
into a 500.

Parameters:
  - context: context.Context
  - raw: string (transport-specific identifier, normalized internally)

Returns:
  - *identity.Digest: The bound identity, or nil for anonymous
*/
func (binding *Binding) Resolve(context context.Context, raw string) *identity.Digest {
	if raw == "" {
		return nil
	}
	id := binding.normalize(raw)
	if id == "" {
		return nil
	}

	// ── 1. In-Process Cache ───────────────────────────────────────────────

	binding.mu.RLock()
	entry, cached := binding.cache[id]
	binding.mu.RUnlock()

	if cached && time.Now().Before(entry.expiresAt) {
		return entry.digest
	}

	// ── 2. Durable Store ──────────────────────────────────────────────────

	digest, err := binding.store.Get(context, id)
	if err != nil {
		ctxutil.GetLogger(context).Warn("session_resolve_degraded",
			slog.Any("error", err),
		)
		return nil
	}

	// ── 3. Cache Maintenance ──────────────────────────────────────────────

	now := time.Now()

	binding.mu.Lock()
	if digest != nil {
		binding.cache[id] = cacheEntry{digest: digest, expiresAt: now.Add(binding.cacheTTL)}
	} else {
		// Known-absent bindings are evicted, not negatively cached, so a
		// login on another instance becomes visible immediately.
		delete(binding.cache, id)
	}
	binding.sweepExpiredLocked(now)
	binding.mu.Unlock()

	return digest
}

// sweepExpiredLocked evicts every expired cache entry, at most once per
// cache-TTL window. Sessions that go quiet would otherwise hold their entry
// forever, since regular eviction only touches the resolved ID.
//
// Callers must hold the write lock.
func (binding *Binding) sweepExpiredLocked(now time.Time) {
	if now.Sub(binding.lastSweep) < binding.cacheTTL {
		return
	}
	binding.lastSweep = now

	for id, entry := range binding.cache {
		if now.After(entry.expiresAt) {
			delete(binding.cache, id)
		}
	}
}

/*
Clear removes the binding for a raw transport identifier.

Description: The cache entry is dropped before the store delete so this
instance stops resolving the session even if the delete fails.

Parameters:
  - context: context.Context
  - raw: string

Returns:
  - error: Store failures
*/
func (binding *Binding) Clear(context context.Context, raw string) error {
	id := binding.normalize(raw)
	if id == "" {
		return nil
	}

	binding.mu.Lock()
	delete(binding.cache, id)
	binding.mu.Unlock()

	return binding.store.Delete(context, id)
}
