package handlers

import (
	"fmt"

	"github.com/pkg/errors"
)

// RecoverableError marks a message that should be requeued because handling it may succeed later.
type RecoverableError struct {
	message string
}

// Error returns the error message for a RecoverableError.
func (e RecoverableError) Error() string {
	return e.message
}

// NewRecoverableError returns a new error that is marked as being recoverable.
func NewRecoverableError(formatString string, a ...interface{}) RecoverableError {
	return RecoverableError{message: fmt.Sprintf(formatString, a...)}
}

// UnrecoverableError marks a message that can never be handled and should be discarded.
type UnrecoverableError struct {
	message string
}

// Error returns the error message for an UnrecoverableError.
func (e UnrecoverableError) Error() string {
	return e.message
}

// NewUnrecoverableError returns a new error that is marked as being unrecoverable.
func NewUnrecoverableError(formatString string, a ...interface{}) UnrecoverableError {
	return UnrecoverableError{message: fmt.Sprintf(formatString, a...)}
}

// IsRecoverable returns true if the error, or any error that it wraps, is a RecoverableError. Errors that
// aren't marked either way are treated as unrecoverable.
func IsRecoverable(err error) bool {
	var recoverable RecoverableError
	return errors.As(err, &recoverable)
}
