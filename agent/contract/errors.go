package contract

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrCarrierUnavailable marks a carrier transport/auth failure after
	// retries; the turn degrades, the conversation survives.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	// ErrRateLimited is returned by the carrier gateway when the adapter
	// boundary rejects a call; the state machine sees it as ERROR.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotifyFailed marks a failed escalation delivery. Logged and
	// surfaced in response metadata; never rolls back the turn.
	ErrNotifyFailed = errors.New("notification delivery failed")

	// ErrMemoryWrite is fatal for the turn: partial memory state would
	// corrupt future decisions, so the whole turn fails atomically.
	ErrMemoryWrite = errors.New("memory write failed")
)
