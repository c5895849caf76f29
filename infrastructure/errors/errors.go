// Package errors provides the unified error taxonomy for the memory
// engine. Every public operation returns either a value or a
// *MemoryError; there are no panics across package boundaries.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies an error kind, per spec.md §4.1 and §7.
type Code string

const (
	CodeInvalidInput        Code = "InvalidInput"
	CodeNotFound            Code = "NotFound"
	CodeQuotaExceeded       Code = "QuotaExceeded"
	CodeRateLimitExceeded   Code = "RateLimitExceeded"
	CodeStorage             Code = "Storage"
	CodeCache               Code = "Cache"
	CodeCircuitOpen         Code = "CircuitOpen"
	CodeSerialization       Code = "Serialization"
	CodeTimeout             Code = "Timeout"
	CodeConcurrencyConflict Code = "ConcurrencyConflict"
	CodeInternal            Code = "Internal"
)

// recoverableByCode mirrors the table in spec.md §7.
var recoverableByCode = map[Code]bool{
	CodeInvalidInput:        false,
	CodeNotFound:            false,
	CodeQuotaExceeded:       false,
	CodeRateLimitExceeded:   true,
	CodeStorage:             true,
	CodeCache:               true,
	CodeCircuitOpen:         true,
	CodeSerialization:       false,
	CodeTimeout:             true,
	CodeConcurrencyConflict: true,
	CodeInternal:            false,
}

// MemoryError is a structured engine error carrying a code, message,
// recoverability flag and optional structured details.
type MemoryError struct {
	Code        Code
	Message     string
	Recoverable bool
	Details     map[string]interface{}
	Err         error
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value detail and returns the receiver for
// chaining.
func (e *MemoryError) WithDetails(key string, value interface{}) *MemoryError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a MemoryError of the given code with the recoverability
// looked up from the spec.md §7 table.
func New(code Code, message string) *MemoryError {
	return &MemoryError{Code: code, Message: message, Recoverable: recoverableByCode[code]}
}

// Wrap wraps an existing error in a MemoryError of the given code.
func Wrap(code Code, message string, err error) *MemoryError {
	return &MemoryError{Code: code, Message: message, Recoverable: recoverableByCode[code], Err: err}
}

// InvalidInput builds a validation failure naming the offending field.
func InvalidInput(field, reason string) *MemoryError {
	return New(CodeInvalidInput, "invalid input").
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// NotFound builds a not-found error for a resource/id pair.
func NotFound(resource, id string) *MemoryError {
	return New(CodeNotFound, "resource not found").
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// QuotaExceeded builds a quota failure, per spec.md §4.1.
func QuotaExceeded(resource string, current, limit int) *MemoryError {
	return New(CodeQuotaExceeded, "quota exceeded").
		WithDetails("resource", resource).
		WithDetails("current", current).
		WithDetails("limit", limit)
}

// RateLimitExceeded builds a rate-limit failure with a retry hint.
func RateLimitExceeded(retryAfter time.Duration) *MemoryError {
	return New(CodeRateLimitExceeded, "rate limit exceeded").
		WithDetails("retry_after", retryAfter.String())
}

// Storage wraps a primary-store failure.
func Storage(operation string, err error) *MemoryError {
	return Wrap(CodeStorage, "storage operation failed", err).
		WithDetails("operation", operation)
}

// Cache wraps a cache-store failure.
func Cache(operation string, err error) *MemoryError {
	return Wrap(CodeCache, "cache operation failed", err).
		WithDetails("operation", operation)
}

// CircuitOpen builds a circuit-breaker short-circuit error.
func CircuitOpen(retryAfter time.Duration) *MemoryError {
	return New(CodeCircuitOpen, "circuit breaker is open").
		WithDetails("retry_after", retryAfter.String())
}

// Serialization wraps a decode/encode failure.
func Serialization(context string, err error) *MemoryError {
	return Wrap(CodeSerialization, "serialization failed", err).
		WithDetails("context", context)
}

// Timeout builds a deadline-exceeded error for a named operation.
func Timeout(operation string) *MemoryError {
	return New(CodeTimeout, "operation timed out").
		WithDetails("operation", operation)
}

// ConcurrencyConflict builds an error for state-machine violations,
// e.g. completing an already-completed episode.
func ConcurrencyConflict(reason string) *MemoryError {
	return New(CodeConcurrencyConflict, "concurrency conflict").
		WithDetails("reason", reason)
}

// Internal wraps an unexpected internal failure.
func Internal(message string, err error) *MemoryError {
	return Wrap(CodeInternal, message, err)
}

// Is reports whether err is a MemoryError of the given code.
func Is(err error, code Code) bool {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// AsMemoryError extracts a *MemoryError from an error chain.
func AsMemoryError(err error) *MemoryError {
	var me *MemoryError
	if errors.As(err, &me) {
		return me
	}
	return nil
}

// IsRecoverable reports whether err (if a MemoryError) is recoverable.
// Non-MemoryError values are treated as non-recoverable.
func IsRecoverable(err error) bool {
	if me := AsMemoryError(err); me != nil {
		return me.Recoverable
	}
	return false
}
