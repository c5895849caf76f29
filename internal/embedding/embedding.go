// Package embedding wraps an external embedding provider behind a
// rate limiter, a timeout, and a content-hash dedup cache, per
// spec.md §4.8 step 1 and §5's "embedding.timeout" suspension point.
package embedding

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	memerrors "github.com/nexusmem/memengine/infrastructure/errors"
	"github.com/nexusmem/memengine/infrastructure/cache"
	"github.com/nexusmem/memengine/infrastructure/ratelimit"
)

// Provider generates a vector embedding for text. Implementations wrap
// a specific model backend; Local is a deterministic built-in used
// when no external provider is configured.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Client wraps a Provider with rate limiting, a timeout, and a
// content-hash dedup cache so repeated text never re-hits the
// provider.
type Client struct {
	provider Provider
	limiter  *ratelimit.Limiter
	timeout  time.Duration
	dedup    *cache.TTLCache
}

// New wraps provider with the given rate limit and per-call timeout.
func New(provider Provider, limiterCfg ratelimit.Config, timeout time.Duration, dedupTTL time.Duration) *Client {
	return &Client{
		provider: provider,
		limiter:  ratelimit.New(limiterCfg),
		timeout:  timeout,
		dedup:    cache.NewTTLCache(dedupTTL, "embedding"),
	}
}

// Embed returns text's embedding, consulting the dedup cache first and
// enforcing the configured rate limit and timeout on a provider call.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if cached, ok := c.dedup.Get(ctx, key); ok {
		return cached.([]float32), nil
	}

	if c.limiter.LimitExceeded() {
		return nil, memerrors.RateLimitExceeded(time.Second)
	}
	if !c.limiter.Allow() {
		return nil, memerrors.RateLimitExceeded(time.Second)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	vec, err := c.provider.Embed(callCtx, text)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, memerrors.Timeout("embed")
		}
		return nil, memerrors.Internal("embedding provider failed", err)
	}

	c.dedup.Set(ctx, key, vec)
	return vec, nil
}

// Dimension reports the wrapped provider's output dimension.
func (c *Client) Dimension() int {
	return c.provider.Dimension()
}

func contentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
