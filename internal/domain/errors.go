package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error kinds. Callers branch with
// errors.Is; the typed variants below carry detail and satisfy Is
// against their sentinel.
var (
	// ErrNotFound: unknown incident or analysis id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: lifecycle transition outside the state
	// table. The incident is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation: malformed evidence or out-of-range fields,
	// rejected before any extractor runs.
	ErrValidation = errors.New("validation failed")

	// ErrExtractorUnavailable: an extractor failed or timed out. Always
	// recovered locally; fusion proceeds with whatever succeeded.
	ErrExtractorUnavailable = errors.New("extractor unavailable")

	// ErrConflict: optimistic concurrency check failed on an incident
	// row; the caller should re-read and retry.
	ErrConflict = errors.New("version conflict")
)

// InvalidTransitionError reports a rejected lifecycle transition.
type InvalidTransitionError struct {
	From IncidentStatus
	To   IncidentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
