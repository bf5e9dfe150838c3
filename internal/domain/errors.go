package domain

import "github.com/cockroachdb/errors"

var (
	// Internal conflicts. The coordinator resolves these itself; they never
	// cross the API boundary.
	ErrSerializationFailure = errors.New("serialization failure")
	ErrConflict             = errors.New("conflict")
	ErrDuplicateToken       = errors.New("duplicate idempotency token")

	// Caller-facing. Seat shortfall is not an error; it is a rejected
	// reservation carrying a reason.
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrContention        = errors.New("contention, retry later")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid state")
)
