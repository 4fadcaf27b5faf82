// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Hasher) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Averi API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// PublicBaseURL is the externally reachable origin used to build
	// account verification links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Session Store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// SessionSecret keys the verification-token signer. Rotating it
	// invalidates outstanding (unconsumed) verification links only.
	SessionSecret string `env:"SESSION_SECRET,required"`

	// Current password-derivation defaults. Each identity record carries a
	// snapshot of the values in force when its hash was derived; raising any
	// of these triggers a transparent rehash on the user's next login.
	HashIterations int `env:"HASH_ITERATIONS"   envDefault:"600000"`
	HashSaltLength int `env:"HASH_SALT_LENGTH"  envDefault:"16"`
	HashKeyLength  int `env:"HASH_KEY_LENGTH"   envDefault:"32"`

	// Cross-Origin Resource Sharing / WebSocket origin allowlist
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	// Derivation cost parameters may only be tuned within sane bounds.
	// A zero or negative value would turn PBKDF2 into a no-op.
	if cfg.HashIterations < 1000 {
		return nil, fmt.Errorf("config: HASH_ITERATIONS must be >= 1000 (got %d)", cfg.HashIterations)
	}
	if cfg.HashSaltLength < 8 {
		return nil, fmt.Errorf("config: HASH_SALT_LENGTH must be >= 8 (got %d)", cfg.HashSaltLength)
	}
	if cfg.HashKeyLength < 16 {
		return nil, fmt.Errorf("config: HASH_KEY_LENGTH must be >= 16 (got %d)", cfg.HashKeyLength)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
