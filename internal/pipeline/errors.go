package pipeline

import (
	"errors"
	"fmt"

	"tailor-backend/internal/credits"
)

var (
	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound indicates no session with that ID for the caller.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRoundNotFound indicates the round number is not in the ledger.
	ErrRoundNotFound = errors.New("round not found")

	// ErrMissingBaseDocument indicates the caller has no base resume to
	// tailor. Terminal for the session; a provider call never happens.
	ErrMissingBaseDocument = errors.New("missing base document")

	// ErrIterationCap indicates the session reached the round cap.
	// Terminal, not retryable.
	ErrIterationCap = errors.New("iteration cap reached")
)

// AdmissionDeniedError is the structured deny for an exhausted prepaid
// balance. It carries everything the caller needs to render a purchase
// path.
type AdmissionDeniedError struct {
	Balance int
	Plans   []credits.Plan
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("admission denied: balance %d", e.Balance)
}

// MalformedEvaluationError indicates the provider returned text that
// does not parse into an Evaluation. Surfaced, never coerced.
type MalformedEvaluationError struct {
	Raw string
	Err error
}

func (e *MalformedEvaluationError) Error() string {
	return fmt.Sprintf("malformed evaluation response: %v", e.Err)
}

func (e *MalformedEvaluationError) Unwrap() error { return e.Err }
