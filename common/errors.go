package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidArgumentError indicates that a request was malformed or self-referential.
type InvalidArgumentError struct {
	message string
}

// Error returns the error message for an InvalidArgumentError.
func (e InvalidArgumentError) Error() string {
	return e.message
}

// NewInvalidArgumentError returns a new error indicating that an argument was invalid.
func NewInvalidArgumentError(formatString string, a ...interface{}) InvalidArgumentError {
	return InvalidArgumentError{message: fmt.Sprintf(formatString, a...)}
}

// NotFoundError indicates that a referenced record does not exist.
type NotFoundError struct {
	message string
}

// Error returns the error message for a NotFoundError.
func (e NotFoundError) Error() string {
	return e.message
}

// NewNotFoundError returns a new error indicating that a record could not be found.
func NewNotFoundError(formatString string, a ...interface{}) NotFoundError {
	return NotFoundError{message: fmt.Sprintf(formatString, a...)}
}

// ForbiddenError indicates that the caller lacks the role required for an operation.
type ForbiddenError struct {
	message string
}

// Error returns the error message for a ForbiddenError.
func (e ForbiddenError) Error() string {
	return e.message
}

// NewForbiddenError returns a new error indicating that the caller may not perform an operation.
func NewForbiddenError(formatString string, a ...interface{}) ForbiddenError {
	return ForbiddenError{message: fmt.Sprintf(formatString, a...)}
}

// InvalidStateError indicates that a transition was attempted from a state that doesn't permit it.
type InvalidStateError struct {
	message string
}

// Error returns the error message for an InvalidStateError.
func (e InvalidStateError) Error() string {
	return e.message
}

// NewInvalidStateError returns a new error indicating that a record is in the wrong state.
func NewInvalidStateError(formatString string, a ...interface{}) InvalidStateError {
	return InvalidStateError{message: fmt.Sprintf(formatString, a...)}
}

// UnavailableError indicates that the persistent store could not complete a request.
type UnavailableError struct {
	message string
	cause   error
}

// Error returns the error message for an UnavailableError.
func (e UnavailableError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
}

// Unwrap returns the underlying cause of an UnavailableError.
func (e UnavailableError) Unwrap() error {
	return e.cause
}

// NewUnavailableError wraps an error returned by the persistent store.
func NewUnavailableError(cause error, formatString string, a ...interface{}) UnavailableError {
	return UnavailableError{message: fmt.Sprintf(formatString, a...), cause: cause}
}

// IsInvalidArgument returns true if the error or any error it wraps is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target InvalidArgumentError
	return errors.As(err, &target)
}

// IsNotFound returns true if the error or any error it wraps is a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// IsForbidden returns true if the error or any error it wraps is a ForbiddenError.
func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}

// IsInvalidState returns true if the error or any error it wraps is an InvalidStateError.
func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

// IsUnavailable returns true if the error or any error it wraps is an UnavailableError.
func IsUnavailable(err error) bool {
	var target UnavailableError
	return errors.As(err, &target)
}
