// Package resilience provides the fault-tolerance machinery that
// protects the memory engine from partial primary-store failure:
// a circuit breaker backed by github.com/sony/gobreaker/v2 and a
// retry helper backed by github.com/cenkalti/backoff/v4. Both keep
// the original hand-rolled API shape so callers never see the
// delegation.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Sentinel errors preserved for callers that compare against them
// directly, per spec.md §4.4.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a CircuitBreaker, per spec.md §4.4 / §6.
type Config struct {
	MaxFailures   int           // consecutive failures before opening
	Timeout       time.Duration // time in open state before half-open
	HalfOpenMax   int           // max requests admitted while half-open
	OnStateChange func(from, to State)
}

// DefaultConfig returns the spec.md §6 defaults:
// failure_threshold=5, open_timeout=30s, half_open_max=3.
func DefaultConfig() Config {
	return Config{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker while exposing the
// Execute(ctx, fn) shape used throughout the engine.
type CircuitBreaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

// New creates a CircuitBreaker for one operation class (e.g. "primary",
// "cache", "embedding"). Each protected operation class owns its own
// breaker instance, per spec.md §4.4's "per primary operation" scoping.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}

	maxFailures := uint32(cfg.MaxFailures)
	halfOpenMax := uint32(cfg.HalfOpenMax)

	settings := gobreaker.Settings{
		MaxRequests: halfOpenMax,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(State(from), State(to))
		}
	}

	return &CircuitBreaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return State(cb.gb.State())
}

// Execute runs fn under circuit-breaker protection. ctx is accepted for
// API symmetry with the rest of the engine; callers enforce their own
// deadlines on fn via context.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	return mapGobreakerError(err)
}

// Stats reports the breaker's current counters, per spec.md §4.4's
// `stats` operation.
type Stats struct {
	State                State
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Counts returns the breaker's raw counters as of the last transition.
func (cb *CircuitBreaker) Counts() Stats {
	c := cb.gb.Counts()
	return Stats{
		State:                cb.State(),
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func mapGobreakerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrCircuitOpen
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrTooManyRequests
	}
	return err
}
