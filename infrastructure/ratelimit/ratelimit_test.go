package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(Config{RequestsPerSecond: 10, Burst: 1})

	if !l.Allow() {
		t.Fatal("first call should be allowed")
	}
}

func TestLimiter_LimitExceeded(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	l.Allow()

	if !l.LimitExceeded() {
		t.Error("expected limit exceeded after burst consumed")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1000, Burst: 10})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Wait(ctx); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	l.Allow()

	if !l.LimitExceeded() {
		t.Fatal("expected exhausted before reset")
	}

	l.Reset()
	if l.LimitExceeded() {
		t.Error("expected fresh bucket to allow after Reset()")
	}
}

func TestLimiter_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		t.Error("DefaultConfig() should return positive rate and burst")
	}
}
