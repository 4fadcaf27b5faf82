// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives for session identifiers and
// verification tokens.
//
// # Architecture
//
// This package isolates security-sensitive code (random identifiers, keyed
// token signing) from the domain logic. It is injected into the Application
// layer via small interfaces so tests can substitute deterministic fakes.
package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewRandomToken returns byteLength cryptographically secure random bytes,
// hex-encoded. Every call yields a distinct value with overwhelming probability.
func NewRandomToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random source: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

// NewSessionID generates an opaque session identifier.
//
// # Safety
//
// It panics only if the OS random source is unavailable (extremely rare).
// This is acceptable as OS entropy failure is an unrecoverable system-level error.
func NewSessionID(byteLength int) string {
	token, err := NewRandomToken(byteLength)
	if err != nil {
		panic("sec: failed to generate session id: " + err.Error())
	}
	return token
}
