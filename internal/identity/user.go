// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity implements the credential and account lifecycle layer.

It defines the core domain entities (User, Digest, CryptoParams) and logic for
password verification, transparent crypto upgrades, registration, and email
verification.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package identity

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/averi/internal/platform/ctxkey"
)

// # Domain Entities

// Status is the verification state of an identity record.
type Status string

const (
	// StatusUnverified marks a freshly registered account awaiting email confirmation.
	StatusUnverified Status = "unverified"

	// StatusVerified marks an account whose owner has proven control of the email address.
	// The transition happens exactly once; only verified accounts can log in.
	StatusVerified Status = "verified"
)

// User represents a registered identity record.
//
// # Crypto Snapshot Invariant
//
// PasswordHash, PasswordSalt, and Crypto always originate from the same
// derivation. Any write that touches one of the three must replace all three
// together; partial updates would leave a hash that can never verify again.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`

	Status Status `json:"status"`

	// VerificationToken is the single-use token mailed at registration.
	// Cleared on consumption; empty for verified records.
	VerificationToken string `json:"-"`

	// PasswordHash is the hex-encoded derived key. Omitted from JSON for security.
	PasswordHash string `json:"-"`

	// PasswordSalt is the hex-encoded random salt unique to this record.
	PasswordSalt string `json:"-"`

	// Crypto is the snapshot of derivation parameters in force when
	// PasswordHash was produced.
	Crypto CryptoParams `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Digest is the minimal projection of a [User] carried in session state.
//
// # Why a projection?
//
// A resolved identity is attached to every authenticated request and every
// live connection. Storing the bare minimum (ID and display name) keeps
// session payloads small and avoids caching credential material anywhere
// outside the credential store.
type Digest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Digest returns the session-safe projection of the user.
func (user *User) Digest() *Digest {
	return &Digest{ID: user.ID, Name: user.Name}
}

// # Normalization

// NormalizeEmail performs case-insensitive canonicalization of an address.
// Uniqueness and lookups always operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName canonicalizes a display name to Unicode NFC so visually
// identical names compare and render consistently.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// # Request Context

// DigestFromContext retrieves the authenticated identity digest placed into
// the context by the session middleware. Returns nil for anonymous requests.
func DigestFromContext(ctx context.Context) *Digest {
	digest, _ := ctx.Value(ctxkey.KeyIdentity).(*Digest)
	return digest
}

// # Field Identifiers

// Global field names for validation and identity mapping in the identity domain.
const (
	FieldEmail          = "email"
	FieldName           = "name"
	FieldPassword       = "password"
	FieldRepeatPassword = "repeat_password"
	FieldToken          = "token"
)
