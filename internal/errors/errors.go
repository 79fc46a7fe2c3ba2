// Package errors provides standardized device errors with codes for the ReadTrack daemon.
//
// Usage:
//
//	// In components - return typed errors
//	if table.Full() {
//	    return errors.LibraryFull("no free book slot")
//	}
//
//	// At the loop / UI boundary - check with errors.Is
//	if errors.Is(err, errors.ErrLibraryFull) {
//	    vm.Notice = "library full"
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the daemon.
const (
	CodeNotFound    Code = "NOT_FOUND"
	CodeLibraryFull Code = "LIBRARY_FULL"
	CodeUnavailable Code = "UNAVAILABLE"
	CodePersistence Code = "PERSISTENCE"
	CodeValidation  Code = "VALIDATION"
	CodeBusBusy     Code = "BUS_BUSY"
	CodeInternal    Code = "INTERNAL"
)

// UserVisible reports whether errors with this code should surface on the
// device display rather than only in the log.
func (c Code) UserVisible() bool {
	switch c {
	case CodeLibraryFull, CodeUnavailable:
		return true
	default:
		return false
	}
}

// Error is a device error with a code, message, and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// UserVisible reports whether this error should surface on the display.
func (e *Error) UserVisible() bool {
	return e.Code.UserVisible()
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound    = &Error{Code: CodeNotFound, Message: "not found"}
	ErrLibraryFull = &Error{Code: CodeLibraryFull, Message: "library full"}
	ErrUnavailable = &Error{Code: CodeUnavailable, Message: "peripheral unavailable"}
	ErrPersistence = &Error{Code: CodePersistence, Message: "persistence failure"}
	ErrValidation  = &Error{Code: CodeValidation, Message: "validation error"}
	ErrBusBusy     = &Error{Code: CodeBusBusy, Message: "bus busy"}
	ErrInternal    = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// LibraryFull creates a library full error.
func LibraryFull(msg string) *Error {
	return &Error{Code: CodeLibraryFull, Message: msg}
}

// Unavailable creates a peripheral unavailable error.
func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg}
}

// Unavailablef creates a peripheral unavailable error with formatted message.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Persistence creates a persistence error.
func Persistence(msg string) *Error {
	return &Error{Code: CodePersistence, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// BusBusy creates a bus busy error.
func BusBusy(msg string) *Error {
	return &Error{Code: CodeBusBusy, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
