// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
)

// ErrCryptoSwapConflict signals that a compare-and-swap crypto upgrade found
// the stored hash already changed. Callers treat it as a lost race, not a
// failure; the record was upgraded (or rewritten) by someone else.
var ErrCryptoSwapConflict = errors.New("identity: crypto fields changed concurrently")

// Repository defines persistence operations for identity records.
//
// # Architecture
//
// Implementations live next to the domain (see PostgresRepository). The
// service layer depends only on this interface so tests can substitute an
// in-memory double.
type Repository interface {
	// Create persists a new identity record.
	//
	// # Returns
	//   - error: apperr.Conflict when the normalized email already exists.
	Create(ctx context.Context, user *User) error

	// FindByID retrieves a record by primary key.
	//
	// # Returns
	//   - *User: The record, or nil with apperr.NotFound.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmailVerified retrieves a verified record by normalized email.
	// Unverified records are invisible to this lookup so login cannot see them.
	FindByEmailVerified(ctx context.Context, email string) (*User, error)

	// FindByToken retrieves an unverified record by its verification token.
	// Consumed (verified) records never match.
	FindByToken(ctx context.Context, token string) (*User, error)

	// MarkVerified transitions a record to verified and clears its token.
	MarkVerified(ctx context.Context, id string) error

	// UpdateCryptoFields atomically replaces the hash, salt, and parameter
	// snapshot, but only if the stored hash still equals expectedOldHash.
	//
	// # Returns
	//   - error: ErrCryptoSwapConflict when the guard did not match.
	UpdateCryptoFields(ctx context.Context, id string, expectedOldHash string, newHash string, newSalt string, params CryptoParams) error
}
