// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/averi/internal/platform/apperr"
	"github.com/taibuivan/averi/internal/platform/dberr"
)

// # Schema Mapping

// accountTable describes the identity.account table layout. Keeping the
// column names in one place keeps the fmt.Sprintf queries below honest.
var accountTable = struct {
	Table             string
	ID                string
	Email             string
	DisplayName       string
	Status            string
	VerificationToken string
	PasswordHash      string
	PasswordSalt      string
	CryptoIterations  string
	CryptoSaltLength  string
	CryptoKeyLength   string
	CreatedAt         string
	UpdatedAt         string
}{
	Table:             "identity.account",
	ID:                "id",
	Email:             "email",
	DisplayName:       "displayname",
	Status:            "status",
	VerificationToken: "verificationtoken",
	PasswordHash:      "passwordhash",
	PasswordSalt:      "passwordsalt",
	CryptoIterations:  "cryptoiterations",
	CryptoSaltLength:  "cryptosaltlength",
	CryptoKeyLength:   "cryptokeylength",
	CreatedAt:         "createdat",
	UpdatedAt:         "updatedat",
}

// # Repository Implementation

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres-backed credential store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

/*
Create persists a new identity record into identity.account.

Parameters:
  - context: context.Context
  - user: *User (fully populated, including crypto snapshot)

Returns:
  - error: apperr.Conflict on duplicate email, or execution failure
*/
func (repository *PostgresRepository) Create(context context.Context, user *User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		accountTable.Table,
		accountTable.ID, accountTable.Email, accountTable.DisplayName,
		accountTable.Status, accountTable.VerificationToken,
		accountTable.PasswordHash, accountTable.PasswordSalt,
		accountTable.CryptoIterations, accountTable.CryptoSaltLength, accountTable.CryptoKeyLength,
		accountTable.CreatedAt, accountTable.UpdatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Email,
		user.Name,
		user.Status,
		user.VerificationToken,
		user.PasswordHash,
		user.PasswordSalt,
		user.Crypto.Iterations,
		user.Crypto.SaltLength,
		user.Crypto.KeyLength,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return uniqueConflict(err)
		}
		return fmt.Errorf("postgres_identity_repo_create_failed: %w", err)
	}

	return nil
}

// Unique index names from data/migrations, used to map a 23505 onto the
// field that actually collided.
const (
	constraintEmailUnique = "account_email_unique"
	constraintTokenUnique = "account_verificationtoken_unique"
)

// uniqueConflict maps a unique violation onto a field-specific conflict.
func uniqueConflict(err error) error {
	if dberr.ConstraintName(err) == constraintTokenUnique {
		return apperr.Conflict("Verification token is already in use")
	}
	return apperr.Conflict("Email address is already registered")
}

/*
FindByID retrieves a record by primary key.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - *User: Hydrated identity entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*User, error) {
	query := fmt.Sprintf(`%s WHERE %s = $1`, selectAccountQuery(), accountTable.ID)

	return repository.scanOne(context, query, "postgres_identity_repo_find_by_id_failed", id)
}

/*
FindByEmailVerified retrieves a verified record by normalized email.

Description: Unverified rows are filtered at the SQL level so a pending
registration is indistinguishable from a missing account to the caller.

Parameters:
  - context: context.Context
  - email: string (already normalized by the caller)

Returns:
  - *User: Hydrated identity entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresRepository) FindByEmailVerified(context context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`%s WHERE %s = $1 AND %s = $2`,
		selectAccountQuery(), accountTable.Email, accountTable.Status)

	return repository.scanOne(context, query, "postgres_identity_repo_find_by_email_failed", email, StatusVerified)
}

/*
FindByToken retrieves an unverified record by its verification token.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *User: Hydrated identity entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresRepository) FindByToken(context context.Context, token string) (*User, error) {
	query := fmt.Sprintf(`%s WHERE %s = $1 AND %s = $2`,
		selectAccountQuery(), accountTable.VerificationToken, accountTable.Status)

	return repository.scanOne(context, query, "postgres_identity_repo_find_by_token_failed", token, StatusUnverified)
}

/*
MarkVerified transitions a record to verified and clears its token.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound when the record does not exist, or update failures
*/
func (repository *PostgresRepository) MarkVerified(context context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = '', %s = $3
		WHERE %s = $1`,
		accountTable.Table,
		accountTable.Status, accountTable.VerificationToken, accountTable.UpdatedAt,
		accountTable.ID,
	)

	tag, err := repository.pool.Exec(context, query, id, StatusVerified, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_mark_verified_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Account")
	}

	return nil
}

/*
UpdateCryptoFields atomically swaps the hash, salt, and parameter snapshot.

Description: The WHERE clause guards on the previous hash value, making the
write a compare-and-swap. A concurrent login that already upgraded the record
makes the guard fail, which surfaces as ErrCryptoSwapConflict.

Parameters:
  - context: context.Context
  - id: string
  - expectedOldHash: string (the hash the caller verified against)
  - newHash: string
  - newSalt: string
  - params: CryptoParams (snapshot that produced newHash)

Returns:
  - error: ErrCryptoSwapConflict on a lost race, or execution failure
*/
func (repository *PostgresRepository) UpdateCryptoFields(context context.Context, id string, expectedOldHash string, newHash string, newSalt string, params CryptoParams) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $3, %s = $4, %s = $5, %s = $6, %s = $7, %s = $8
		WHERE %s = $1 AND %s = $2`,
		accountTable.Table,
		accountTable.PasswordHash, accountTable.PasswordSalt,
		accountTable.CryptoIterations, accountTable.CryptoSaltLength, accountTable.CryptoKeyLength,
		accountTable.UpdatedAt,
		accountTable.ID, accountTable.PasswordHash,
	)

	tag, err := repository.pool.Exec(context, query,
		id,
		expectedOldHash,
		newHash,
		newSalt,
		params.Iterations,
		params.SaltLength,
		params.KeyLength,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("postgres_identity_repo_crypto_swap_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCryptoSwapConflict
	}

	return nil
}

// # Internal Helpers

// selectAccountQuery builds the shared SELECT column list for account reads.
func selectAccountQuery() string {
	return fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s`,
		accountTable.ID, accountTable.Email, accountTable.DisplayName,
		accountTable.Status, accountTable.VerificationToken,
		accountTable.PasswordHash, accountTable.PasswordSalt,
		accountTable.CryptoIterations, accountTable.CryptoSaltLength, accountTable.CryptoKeyLength,
		accountTable.CreatedAt, accountTable.UpdatedAt,
		accountTable.Table,
	)
}

// scanOne executes a single-row account query and hydrates the entity.
func (repository *PostgresRepository) scanOne(ctx context.Context, query string, action string, args ...any) (*User, error) {
	user := &User{}
	err := repository.pool.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Status,
		&user.VerificationToken,
		&user.PasswordHash,
		&user.PasswordSalt,
		&user.Crypto.Iterations,
		&user.Crypto.SaltLength,
		&user.Crypto.KeyLength,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	return user, nil
}
