// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements a token-bucket limiter keyed by logical
// client. It gates incoming tool calls to protect the warehouse backend from
// overload: a request that finds the bucket empty fails fast rather than
// queuing unbounded.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures the limiter.
type Config struct {
	// Enabled enables rate limiting. When false, Allow always succeeds.
	Enabled bool

	// RequestsPerSecond is the sustained per-client refill rate.
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed per client.
	BurstCapacity int

	// IdleTTL is how long an inactive client's bucket is retained before
	// being pruned. Default: 10 minutes.
	IdleTTL time.Duration

	// Logger for limiter events.
	Logger *zap.Logger
}

// DefaultConfig returns conservative defaults for a single-user adapter.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 5.0,
		BurstCapacity:     10,
		IdleTTL:           10 * time.Minute,
		Logger:            zap.NewNop(),
	}
}

// Limiter is a per-client token bucket.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
	lastGC  time.Time

	now func() time.Time // injectable clock for tests
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLimiter creates a limiter from config.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.BurstCapacity <= 0 {
		cfg.BurstCapacity = DefaultConfig().BurstCapacity
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		lastGC:  time.Now(),
		now:     time.Now,
	}
}

// Allow consumes one token from clientID's bucket. It returns false when the
// bucket is empty; callers surface that as a rate-limit error immediately.
func (l *Limiter) Allow(clientID string) bool {
	if !l.cfg.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstCapacity), lastRefill: now}
		l.buckets[clientID] = b
	}

	// Refill based on elapsed time
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(l.cfg.BurstCapacity), b.tokens+elapsed*l.cfg.RequestsPerSecond)
	b.lastRefill = now

	l.maybeGC(now)

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}

	l.cfg.Logger.Warn("tool call rejected by rate limiter", zap.String("client_id", clientID))
	return false
}

// maybeGC prunes buckets idle longer than IdleTTL. Called with l.mu held.
func (l *Limiter) maybeGC(now time.Time) {
	if now.Sub(l.lastGC) < l.cfg.IdleTTL {
		return
	}
	l.lastGC = now
	for id, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.cfg.IdleTTL {
			delete(l.buckets, id)
		}
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
