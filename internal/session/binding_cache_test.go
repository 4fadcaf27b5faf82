// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/averi/internal/identity"
)

// staticStore is a minimal [Store] for cache-internals tests.
type staticStore struct {
	bindings map[string]*identity.Digest
}

func (store *staticStore) Get(_ context.Context, id string) (*identity.Digest, error) {
	return store.bindings[id], nil
}

func (store *staticStore) Set(_ context.Context, id string, digest *identity.Digest, _ time.Duration) error {
	store.bindings[id] = digest
	return nil
}

func (store *staticStore) Delete(_ context.Context, id string) error {
	delete(store.bindings, id)
	return nil
}

/*
TestBinding_CacheSweep verifies that resolving one session evicts expired
cache entries belonging to other, now quiet, sessions.
*/
func TestBinding_CacheSweep(t *testing.T) {
	store := &staticStore{bindings: map[string]*identity.Digest{
		"active": {ID: "user-1", Name: "Ada"},
	}}
	binding := NewBinding(store, nil, slog.Default())

	now := time.Now()

	// Seed entries for sessions that went quiet long ago, plus one live one.
	binding.mu.Lock()
	binding.cache["quiet-1"] = cacheEntry{digest: &identity.Digest{ID: "user-2"}, expiresAt: now.Add(-time.Hour)}
	binding.cache["quiet-2"] = cacheEntry{digest: &identity.Digest{ID: "user-3"}, expiresAt: now.Add(-time.Minute)}
	binding.cache["fresh"] = cacheEntry{digest: &identity.Digest{ID: "user-4"}, expiresAt: now.Add(time.Hour)}
	// Force the next maintenance pass to run a sweep.
	binding.lastSweep = now.Add(-2 * binding.cacheTTL)
	binding.mu.Unlock()

	resolved := binding.Resolve(context.Background(), "active")
	require.NotNil(t, resolved)
	assert.Equal(t, "user-1", resolved.ID)

	binding.mu.RLock()
	defer binding.mu.RUnlock()
	assert.NotContains(t, binding.cache, "quiet-1")
	assert.NotContains(t, binding.cache, "quiet-2")
	assert.Contains(t, binding.cache, "fresh")
	assert.Contains(t, binding.cache, "active")
}

/*
TestBinding_CacheSweep_Throttled verifies the sweep runs at most once per
cache-TTL window so resolution stays cheap under load.
*/
func TestBinding_CacheSweep_Throttled(t *testing.T) {
	store := &staticStore{bindings: map[string]*identity.Digest{
		"active": {ID: "user-1", Name: "Ada"},
	}}
	binding := NewBinding(store, nil, slog.Default())

	now := time.Now()

	binding.mu.Lock()
	binding.cache["quiet"] = cacheEntry{digest: &identity.Digest{ID: "user-2"}, expiresAt: now.Add(-time.Hour)}
	// A sweep just ran; the next pass must skip the map walk.
	binding.lastSweep = now
	binding.mu.Unlock()

	require.NotNil(t, binding.Resolve(context.Background(), "active"))

	binding.mu.RLock()
	defer binding.mu.RUnlock()
	assert.Contains(t, binding.cache, "quiet")
}
