// Package apperr defines the error taxonomy shared by the timeline core.
//
// Every failure surfaced to a caller carries a machine-readable code so
// command and tool layers can branch on it without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeValidation indicates malformed or missing input.
	CodeValidation Code = "VALIDATION"
	// CodeNotFound indicates a referenced record is absent.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict indicates the operation lost to an existing record,
	// such as a live session run or a referenced continuity.
	CodeConflict Code = "CONFLICT"
	// CodeInvalidOperation indicates a domain rule violation, such as
	// ending a session that already ended.
	CodeInvalidOperation Code = "INVALID_OPERATION"
	// CodeRepository wraps an underlying storage failure opaquely.
	CodeRepository Code = "REPOSITORY"
)

// Error pairs a code with a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a VALIDATION error.
func Validation(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NOT_FOUND error.
func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a CONFLICT error.
func Conflict(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidOperation builds an INVALID_OPERATION error.
func InvalidOperation(format string, args ...any) error {
	return &Error{Code: CodeInvalidOperation, Message: fmt.Sprintf(format, args...)}
}

// Repository wraps a storage failure.
func Repository(err error, format string, args ...any) error {
	return &Error{Code: CodeRepository, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeRepository when err carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeRepository
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
