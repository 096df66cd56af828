package helper

import (
	"errors"
	"fmt"
)

// Error kinds for the engine. Callers check them with errors.Is; handlers
// and core components wrap them with NewError for operation context.
var (
	// ErrValidation marks malformed input (mention, claim, span).
	// Validation failures are skipped and reported, never fatal to a batch.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent entity or relationship. During
	// verification absence is an answer, not an exception path.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a retryable external-service failure.
	ErrTransient = errors.New("transient service failure")
)

// Error wraps an error with the operation that failed.
type Error struct {
	Operation string
	Err       error
}

// NewError creates an error carrying the failed operation's name.
func NewError(operation string, err error) error {
	return &Error{Operation: operation, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %v: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether err should be retried.
func Transient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Permanent marks err as non-retryable for retry policies.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w (permanent)", err)
}
