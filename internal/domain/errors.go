// Package domain provides shared domain-level sentinel errors. Every
// fallible core operation returns one of these wrapped with %w so callers
// can classify failures with errors.Is without depending on component
// internals, per the error taxonomy in the specification (§7).
package domain

import "errors"

var (
	// ErrInvalidArgument indicates malformed or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create collided with an existing entity.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates a concurrent modification conflict (optimistic
	// locking / compare-and-set failure).
	ErrConflict = errors.New("conflict: resource was modified by another request")

	// ErrValidation indicates a request failed domain validation.
	ErrValidation = errors.New("validation failed")

	// ErrCorruption indicates a checksum, magic, or length mismatch was
	// detected while reading persisted state.
	ErrCorruption = errors.New("corruption")

	// ErrIO indicates an underlying filesystem or network I/O failure.
	ErrIO = errors.New("io error")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrRateLimited indicates the caller exceeded an enforced rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrStorageFull indicates a write could not be admitted because
	// durable storage capacity was exhausted.
	ErrStorageFull = errors.New("storage full")

	// ErrStorageBusy indicates admission control rejected a write because
	// the memtable is at its flush threshold.
	ErrStorageBusy = errors.New("storage busy")

	// ErrDimensionMismatch indicates a vector's length does not match the
	// index's configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrProviderError indicates an external LLM/embedding provider call
	// failed.
	ErrProviderError = errors.New("provider error")

	// ErrInternal indicates an unclassified internal failure.
	ErrInternal = errors.New("internal error")
)

// RetryAfterer is implemented by errors that carry a retry hint, surfaced by
// the HTTP layer as `retry_after_ms` (§7).
type RetryAfterer interface {
	RetryAfterMS() int64
}
