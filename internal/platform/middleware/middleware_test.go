// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/taibuivan/averi/internal/platform/constants"
)

/*
TestEvictStaleClients verifies that idle per-IP limiter entries are removed
while recently active ones survive a cleanup pass.
*/
func TestEvictStaleClients(t *testing.T) {
	now := time.Now()

	mu.Lock()
	clients = map[string]*rateLimitClient{
		"10.0.0.1": {
			limiter:  rate.NewLimiter(rate.Limit(constants.DefaultRateLimitRPS), constants.DefaultRateLimitBurst),
			lastSeen: now.Add(-2 * constants.RateLimitClientTTL),
		},
		"10.0.0.2": {
			limiter:  rate.NewLimiter(rate.Limit(constants.DefaultRateLimitRPS), constants.DefaultRateLimitBurst),
			lastSeen: now,
		},
	}
	mu.Unlock()

	evictStaleClients(now, constants.RateLimitClientTTL)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, clients, "10.0.0.1")
	assert.Contains(t, clients, "10.0.0.2")
}
