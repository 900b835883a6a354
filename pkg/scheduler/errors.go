package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by scheduler operations. Callers classify
// failures with errors.Is.
var (
	// ErrValidation indicates invalid subscription parameters.
	ErrValidation = errors.New("validation error")
	// ErrConflict indicates an operation that conflicts with the scheduler's
	// current lifecycle state.
	ErrConflict = errors.New("conflict")
	// ErrClosed indicates the scheduler has been stopped and no longer
	// accepts subscriptions.
	ErrClosed = errors.New("scheduler closed")
)

// schedulerError wraps a sentinel with a human-readable message while
// keeping errors.Is classification intact.
func schedulerError(kind error, message string) error {
	return fmt.Errorf("%w: %s", kind, message)
}
