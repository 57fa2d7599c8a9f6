package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrQuestionNotFound is returned when a question id or correlation id
	// resolves to nothing.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrAlreadyAnswered is returned on an attempt to answer a question
	// that already has a recorded response. The first answer is terminal;
	// a duplicate or misrouted second response must never re-route.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrBrokenFoundation mirrors the foundation verifier's gate error.
	// The verifier itself lives upstream; this type exists so callers can
	// check it before routing an approval into execution.
	ErrBrokenFoundation = errors.New("foundation verification failed")
)

// FoundationGate is the upstream may-proceed check consulted before an
// approved task is handed to the execution layer.
type FoundationGate func(ctx context.Context) error

// ValidationError rejects malformed input before anything is persisted.
// It is permanent: retrying the same input can never succeed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// Permanent marks the error as non-retryable.
func (e *ValidationError) Permanent() bool { return true }

// CorrelationMismatchError indicates a response was routed to the wrong
// question. It is a hard stop: it signals a bug upstream, never retried.
type CorrelationMismatchError struct {
	QuestionID int64
	Want       string
	Got        string
}

func (e *CorrelationMismatchError) Error() string {
	return fmt.Sprintf("correlation mismatch for question %d: have %q, response carries %q",
		e.QuestionID, e.Want, e.Got)
}

// Permanent marks the error as non-retryable.
func (e *CorrelationMismatchError) Permanent() bool { return true }
