// Package apperr defines the sentinel errors shared across the engine.
//
// Core operations degrade to empty results instead of surfacing hard
// failures; these sentinels let callers classify the degradation with
// errors.Is without string matching.
package apperr

import "errors"

var (
	// ErrNotFound indicates a requested note or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrToolUnavailable indicates the external search tool is missing or
	// unusable and the fallback path also failed.
	ErrToolUnavailable = errors.New("search tool unavailable")

	// ErrTimeout indicates an operation exceeded its allotted time. It is
	// reported distinctly from ordinary failure and counted separately by
	// health metrics.
	ErrTimeout = errors.New("operation timed out")

	// ErrResourceExhausted indicates memory pressure after a forced
	// collection attempt, or a full queue with no evictable slot.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrValidation indicates malformed input that was rejected or
	// truncated rather than processed.
	ErrValidation = errors.New("validation failed")

	// ErrCircuitOpen indicates the circuit breaker rejected the call
	// without attempting the underlying operation.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrQueueFull indicates the job queue is at capacity and the new job
	// could not evict a lower-priority entry.
	ErrQueueFull = errors.New("job queue full")

	// ErrCancelled indicates a job was cancelled before completion.
	ErrCancelled = errors.New("cancelled")
)
