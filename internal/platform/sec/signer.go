// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces keyed-digest verification tokens.
//
// # Why a signed token?
//
// The verification token doubles as a URL slug mailed to the user. Signing it
// with the server secret makes it unguessable and non-enumerable: an attacker
// cannot mint a valid-looking token for an arbitrary address, and tokens carry
// no sequence an outsider could walk.
type Signer struct {
	secret []byte
}

// NewSigner constructs a [Signer] keyed with the server secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

/*
VerificationToken mints an opaque, single-use account verification token.

Description: HS256 digest over the email address, the issue time, and a random
nonce. The token is stored verbatim on the unverified identity record and later
matched exactly; it is never parsed back, so the claims exist only to feed the
digest.

Parameters:
  - email: string (normalized recipient address)
  - issuedAt: time.Time

Returns:
  - string: Compact signed token
  - error: Signing failures
*/
func (signer *Signer) VerificationToken(email string, issuedAt time.Time) (string, error) {

	// Random nonce keeps tokens unique even across rapid re-registrations.
	nonce, err := NewRandomToken(8)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Subject:  email,
		IssuedAt: jwt.NewNumericDate(issuedAt),
		ID:       nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signer.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign verification token: %w", err)
	}

	return signed, nil
}
