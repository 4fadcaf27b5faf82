// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/averi/internal/platform/apperr"
	"github.com/taibuivan/averi/internal/platform/constants"
	"github.com/taibuivan/averi/pkg/uuidv7"
)

// Mailer delivers account verification messages.
type Mailer interface {
	// SendVerification delivers the confirmation link to the recipient.
	SendVerification(ctx context.Context, recipient string, verificationURL string) error
}

// TokenSigner mints single-use verification tokens.
type TokenSigner interface {
	VerificationToken(email string, issuedAt time.Time) (string, error)
}

// Service implements the identity use cases: registration, email
// verification, and credential-backed login with transparent crypto upgrades.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, login, or
// upgrade logic must be reviewed by the security team.
type Service struct {
	repository Repository
	hasher     *Hasher
	signer     TokenSigner
	mailer     Mailer
	baseURL    string
	log        *slog.Logger

	// upgrades tracks in-flight background crypto upgrades so shutdown and
	// tests can drain them deterministically.
	upgrades sync.WaitGroup
}

// NewService constructs a new identity [Service] with necessary dependencies.
func NewService(
	repository Repository,
	hasher *Hasher,
	signer TokenSigner,
	mailer Mailer,
	baseURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		repository: repository,
		hasher:     hasher,
		signer:     signer,
		mailer:     mailer,
		baseURL:    baseURL,
		log:        logger,
	}
}

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register validates, hashes, and persists a brand new unverified account,
// then dispatches the verification email.
//
// # Parameters
//   - context: Context for the database operation.
//   - input: The user-provided registration details.
//
// # Returns
//   - A pointer to the newly created [*User].
//   - Returns [apperr.Conflict] if the email already exists.
//
// # Business Rules
//   - Emails are unique case-insensitively.
//   - New credentials always use the current default crypto parameters.
//   - Accounts start unverified and cannot log in until confirmed.
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	// ── 1. Normalization ──────────────────────────────────────────────────

	email := NormalizeEmail(input.Email)
	name := NormalizeName(input.Name)

	// ── 2. Credential Derivation ──────────────────────────────────────────

	// New records always carry the current defaults as their snapshot.
	params := service.hasher.Defaults()

	salt, err := service.hasher.GenerateSalt(params.SaltLength)
	if err != nil {
		return nil, fmt.Errorf("identity_service_salt_failed: %w", err)
	}

	hash, err := service.hasher.Derive(context, input.Password, salt, params)
	if err != nil {
		return nil, fmt.Errorf("identity_service_hash_failed: %w", err)
	}

	// ── 3. Verification Token ─────────────────────────────────────────────

	now := time.Now()
	token, err := service.signer.VerificationToken(email, now)
	if err != nil {
		return nil, fmt.Errorf("identity_service_token_failed: %w", err)
	}

	// ── 4. Entity Construction ────────────────────────────────────────────

	user := &User{
		ID:                uuidv7.New(), // Time-sortable ID to prevent PG index fragmentation.
		Email:             email,
		Name:              name,
		Status:            StatusUnverified,
		VerificationToken: token,
		PasswordHash:      hash,
		PasswordSalt:      salt,
		Crypto:            params,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// ── 5. Persistence ────────────────────────────────────────────────────

	// Uniqueness is enforced by the lower(email) index; a duplicate surfaces
	// here as a client-safe Conflict.
	if err := service.repository.Create(context, user); err != nil {
		return nil, err
	}

	// ── 6. Delivery ───────────────────────────────────────────────────────

	verificationURL := service.baseURL + constants.VerificationPath + token
	if err := service.mailer.SendVerification(context, email, verificationURL); err != nil {
		// Delivery failure does not roll back the account; the user can
		// re-register after the pending record is cleaned up, and operations
		// can resend from the stored token.
		service.log.Error("verification_email_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	return user, nil
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string
}

// Login validates credentials against the stored hash and returns the
// session-safe identity digest.
//
// # Returns
//   - A pointer to the [*Digest] of the authenticated account.
//   - Returns [apperr.Unauthorized] for every failure mode.
//
// # Flow
//  1. Lookup verified account by normalized email.
//  2. Re-derive the password under the stored snapshot and compare.
//  3. Kick off a background crypto upgrade when the snapshot is stale.
//
// # Security
//
// Unknown email, unverified account, storage fault, and wrong password all
// collapse into the same generic rejection so the endpoint cannot be used to
// enumerate accounts. The real cause is attached for server-side telemetry.
func (service *Service) Login(context context.Context, input LoginInput) (*Digest, error) {
	// ── 1. Fetch Account ──────────────────────────────────────────────────

	user, err := service.repository.FindByEmailVerified(context, NormalizeEmail(input.Email))
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials", err)
	}

	// ── 2. Password Verification ──────────────────────────────────────────

	match, err := service.hasher.Verify(context, input.Password, user)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials", err)
	}
	if !match {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// ── 3. Transparent Crypto Upgrade ─────────────────────────────────────

	// The upgrade re-derives the hash at current cost, which is too slow to
	// block the login response. It runs detached from the request lifetime;
	// a failure leaves the old (still valid) credential in place.
	service.upgrades.Add(1)
	go func(user User, password string) {
		defer service.upgrades.Done()
		if err := service.UpgradeIfStale(detachedContext(context), &user, password); err != nil {
			service.log.Warn("crypto_upgrade_failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}(*user, input.Password)

	return user.Digest(), nil
}

// UpgradeIfStale re-derives the credential under the current default
// parameters when the stored snapshot is weaker, and swaps all three crypto
// fields atomically.
//
// # Concurrency
//
// The swap is guarded on the previously verified hash. Two concurrent logins
// may both detect staleness; the loser of the race observes
// [ErrCryptoSwapConflict] and treats the upgrade as already done.
func (service *Service) UpgradeIfStale(ctx context.Context, user *User, password string) error {
	current := service.hasher.Defaults()
	if !user.Crypto.StaleAgainst(current) {
		return nil
	}

	// Fresh salt at the new length; reusing the old salt would pin the record
	// to the previous salt length forever.
	salt, err := service.hasher.GenerateSalt(current.SaltLength)
	if err != nil {
		return fmt.Errorf("identity_service_upgrade_salt_failed: %w", err)
	}

	hash, err := service.hasher.Derive(ctx, password, salt, current)
	if err != nil {
		return fmt.Errorf("identity_service_upgrade_hash_failed: %w", err)
	}

	err = service.repository.UpdateCryptoFields(ctx, user.ID, user.PasswordHash, hash, salt, current)
	if errors.Is(err, ErrCryptoSwapConflict) {
		// Lost the race to a concurrent login. The record already carries a
		// fresh credential, so there is nothing left to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity_service_upgrade_swap_failed: %w", err)
	}

	service.log.Info("crypto_upgraded",
		slog.String("user_id", user.ID),
		slog.Int("iterations", current.Iterations),
	)

	return nil
}

// Verify consumes a verification token, transitioning the matching account
// to verified exactly once.
//
// # Returns
//   - The verified [*User].
//   - Returns [apperr.NotFound] for unknown, already consumed, or replayed tokens.
//   - Storage faults propagate as wrapped errors so they surface as logged
//     500s, never as a silent NotFound.
func (service *Service) Verify(context context.Context, token string) (*User, error) {
	// Consumed tokens never match: FindByToken only sees unverified records,
	// so a replay of a used link gets the same NotFound as a forged one.
	user, err := service.repository.FindByToken(context, token)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("Verification token")
		}
		return nil, fmt.Errorf("identity_service_verify_lookup_failed: %w", err)
	}

	if err := service.repository.MarkVerified(context, user.ID); err != nil {
		return nil, fmt.Errorf("identity_service_verify_failed: %w", err)
	}

	user.Status = StatusVerified
	user.VerificationToken = ""

	return user, nil
}

// Wait blocks until all in-flight background crypto upgrades have finished.
// Called during graceful shutdown and by tests that assert on upgrade effects.
func (service *Service) Wait() {
	service.upgrades.Wait()
}

// detachedContext detaches the upgrade from the request lifetime while
// preserving context values for logging.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
