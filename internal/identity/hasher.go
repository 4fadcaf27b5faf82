// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
)

// # Crypto Parameters

// CryptoParams is the snapshot of key-derivation parameters recorded next to
// every password hash. Verification always replays the stored snapshot, never
// the process defaults, so old hashes keep verifying after the defaults are
// raised.
type CryptoParams struct {
	// Iterations is the PBKDF2 iteration count.
	Iterations int `json:"iterations"`

	// SaltLength is the salt length in bytes before hex encoding.
	SaltLength int `json:"salt_length"`

	// KeyLength is the derived key length in bytes before hex encoding.
	KeyLength int `json:"key_length"`
}

// StaleAgainst reports whether any current default strictly exceeds the
// stored snapshot. A snapshot with a higher value than the defaults in some
// dimension is not stale; downgrades never happen.
func (params CryptoParams) StaleAgainst(current CryptoParams) bool {
	return current.Iterations > params.Iterations ||
		current.SaltLength > params.SaltLength ||
		current.KeyLength > params.KeyLength
}

// # Hasher

// Hasher derives and verifies password hashes with PBKDF2-SHA256.
//
// Derivation is CPU-bound by design, so concurrent derivations are capped at
// the number of usable cores. Requests beyond the cap queue on the context
// rather than oversubscribing the scheduler.
type Hasher struct {
	defaults CryptoParams
	sem      *semaphore.Weighted
}

// NewHasher creates a Hasher with the given current default parameters.
func NewHasher(defaults CryptoParams) *Hasher {
	return &Hasher{
		defaults: defaults,
		sem:      semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Defaults returns the current default derivation parameters.
func (hasher *Hasher) Defaults() CryptoParams {
	return hasher.defaults
}

// GenerateSalt returns a hex-encoded random salt of byteLength random bytes.
func (hasher *Hasher) GenerateSalt(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("hasher: failed to generate salt: %w", err)
	}

	return hex.EncodeToString(buffer), nil
}

// Derive computes the hex-encoded PBKDF2-SHA256 hash of password under the
// given salt and parameter snapshot.
//
// # Parameters
//   - ctx: Bounds the wait for a derivation slot.
//   - password: Plaintext password. The empty string is derived like any other.
//   - salt: Hex-encoded salt as stored on the record.
//   - params: Snapshot to replay. Pass Defaults() for new credentials.
func (hasher *Hasher) Derive(ctx context.Context, password string, salt string, params CryptoParams) (string, error) {
	if err := hasher.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hasher: derivation cancelled: %w", err)
	}
	defer hasher.sem.Release(1)

	key := pbkdf2.Key([]byte(password), []byte(salt), params.Iterations, params.KeyLength, sha256.New)

	return hex.EncodeToString(key), nil
}

// Verify re-derives password under the user's stored salt and snapshot and
// compares it against the stored hash in constant time.
//
// # Returns
//   - bool: true only when the derived hash matches the stored hash.
//   - error: non-nil only on derivation failure, never on mismatch.
func (hasher *Hasher) Verify(ctx context.Context, password string, user *User) (bool, error) {
	derived, err := hasher.Derive(ctx, password, user.PasswordSalt, user.Crypto)
	if err != nil {
		return false, err
	}

	if len(derived) != len(user.PasswordHash) {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(derived), []byte(user.PasswordHash)) == 1, nil
}
