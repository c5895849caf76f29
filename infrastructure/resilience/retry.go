package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential-backoff retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, mapped to backoff.RandomizationFactor
}

// DefaultRetryConfig returns sensible defaults for transient storage
// failures (batch-writer flush retry, primary reconnect), per spec.md
// §7 "Step-buffer flush retries the whole batch on transient
// Storage/Timeout".
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff, using
// github.com/cenkalti/backoff/v4 under the hood. The first call is not
// counted as a retry: MaxAttempts=3 means up to 2 additional attempts
// after the first failure.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts instead of wall-clock

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withCtx := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)

	return backoff.Retry(fn, withCtx)
}
