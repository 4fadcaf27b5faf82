// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/averi/internal/identity"
	"github.com/taibuivan/averi/internal/platform/constants"
)

// RedisStore implements [Store] on a Redis client.
//
// Bindings are stored as JSON digests under a namespaced key so Redis-side
// TTL handles expiry without any application-level sweeping.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// sessionKey builds the namespaced Redis key for a session ID.
func sessionKey(id string) string {
	return constants.RedisPrefixSession + id
}

/*
Get retrieves the digest bound to a session ID.

Description: A missing key and a corrupt payload both resolve to (nil, nil).
Corrupt payloads are additionally deleted so the bad entry cannot keep
resurfacing; the caller degrades the session to anonymous either way.

Parameters:
  - context: context.Context
  - id: string (already normalized session identifier)

Returns:
  - *identity.Digest: The binding, or nil when absent
  - error: Store-level failures only
*/
func (store *RedisStore) Get(context context.Context, id string) (*identity.Digest, error) {
	payload, err := store.client.Get(context, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session_store_get_failed: %w", err)
	}

	digest := &identity.Digest{}
	if err := json.Unmarshal(payload, digest); err != nil {
		_ = store.client.Del(context, sessionKey(id)).Err()
		return nil, nil
	}

	return digest, nil
}

/*
Set binds a digest to a session ID with the given TTL.

Parameters:
  - context: context.Context
  - id: string
  - digest: *identity.Digest
  - ttl: time.Duration (Redis-side expiry)

Returns:
  - error: Serialization or store failures
*/
func (store *RedisStore) Set(context context.Context, id string, digest *identity.Digest, ttl time.Duration) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("session_store_marshal_failed: %w", err)
	}

	if err := store.client.Set(context, sessionKey(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("session_store_set_failed: %w", err)
	}

	return nil
}

/*
Delete removes a binding. Absent keys are a no-op.
*/
func (store *RedisStore) Delete(context context.Context, id string) error {
	if err := store.client.Del(context, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("session_store_delete_failed: %w", err)
	}
	return nil
}
