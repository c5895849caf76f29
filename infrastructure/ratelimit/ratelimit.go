// Package ratelimit throttles calls to the embedding provider, per
// spec.md §4.1 / §4.9.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a token-bucket limiter with a per-second rate and
// burst. New also derives a second bucket from it that refills at 60
// times the per-second rate with twice the burst; being looser than the
// per-second bucket on both counts, it never rejects a call the
// per-second bucket admits.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig matches the embedding-provider throttle defaults in
// spec.md §6 (embedding.rate_limit_per_second).
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// Limiter wraps golang.org/x/time/rate with the per-second bucket and
// the derived second bucket described on Config.
type Limiter struct {
	limiter   *rate.Limiter
	perMinute *rate.Limiter
	mu        sync.RWMutex
	config    Config
}

// New creates a Limiter from cfg, defaulting unset fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}

	return &Limiter{
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

// Allow reports whether a single call may proceed right now, consuming a
// token from both buckets if so.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow() && l.perMinute.Allow()
}

// AllowN reports whether n calls may proceed at time now.
func (l *Limiter) AllowN(now time.Time, n int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.AllowN(now, n) && l.perMinute.AllowN(now, n)
}

// Wait blocks until a per-second token is available or ctx is done. It
// does not consult the second bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	return limiter.Wait(ctx)
}

// LimitExceeded reports whether the per-second bucket is currently
// exhausted, without consuming a token (the embedding client checks it
// to fail fast with RateLimitExceeded rather than block).
func (l *Limiter) LimitExceeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Tokens() < 1
}

// PerMinuteLimitExceeded reports whether the derived second bucket is
// currently exhausted.
func (l *Limiter) PerMinuteLimitExceeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.perMinute.Tokens() < 1
}

// Reset replaces both buckets with fresh ones at the configured rate,
// used by tests and by administrative reset operations.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
	l.perMinute = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond*60), l.config.Burst*2)
}
