package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-answer/pkg/apperrors"
)

var (
	// ErrInterrupted is returned when a generation is stopped by Interrupt,
	// InterruptAll, or cancellation of the caller's context. It is never retried.
	ErrInterrupted = errors.New("generation interrupted")

	// ErrRetriesExhausted is matched by *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNoModelAvailable is returned when no model is configured and none could be discovered.
	ErrNoModelAvailable = fmt.Errorf("no model available: %w", apperrors.ErrUpstream)

	// ErrGenerationInProgress is returned when an answer generation is already running.
	ErrGenerationInProgress = fmt.Errorf("generation already in progress: %w", apperrors.ErrConflict)
)

// TransientError is a failed streaming attempt against one model.
type TransientError struct {
	Model   string
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("model %q failed on attempt %d: %v", e.Model, e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when the attempt budget is spent while
// untried models remain.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("retries exhausted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, apperrors.ErrUpstream, e.Last}
}

// interruptError describes why ctx ended. Causes other than ErrInterrupted
// (caller cancellation, deadline) are kept in the chain.
func interruptError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, ErrInterrupted) {
		return ErrInterrupted
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}
