package domain

import "errors"

var (
	// ErrNotFound indicates an unknown reference or correlation id. Surfaced
	// to the caller, never retried.
	ErrNotFound = errors.New("contribution not found")

	// ErrValidation indicates malformed input (bad status value, non-positive
	// amount, unknown category). Rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrProviderUnavailable indicates a network failure, timeout or
	// non-success response from the payment provider. Recoverable: drives a
	// retry-queue enqueue on submission or a soft degrade on poll.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvariantViolation indicates the aggregate counters and transaction
	// statuses disagree. It should never occur while transitions are applied
	// atomically; observing it is a bug signal, not a retryable condition.
	ErrInvariantViolation = errors.New("aggregate invariant violation")
)
