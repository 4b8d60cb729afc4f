// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Validationf is shorthand for wrapping a formatted cause in ErrValidation.
func Validationf(format string, args ...any) *Error {
	return WrapError(ErrValidation, fmt.Errorf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}

// Predefined errors
var (
	// Request errors
	ErrValidation   = &Error{Code: "VALIDATION_ERROR", Message: "invalid request"}
	ErrNotFound     = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Strategy errors
	ErrUnconfiguredStrategy = &Error{Code: "UNCONFIGURED_STRATEGY", Message: "strategy has no rule configuration"}
	ErrInsufficientData     = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for simulation"}

	// Market data errors
	ErrFetchFailed    = &Error{Code: "FETCH_FAILED", Message: "fetching from external source failed"}
	ErrNoFetcher      = &Error{Code: "NO_FETCHER", Message: "no fetcher registered for source"}
	ErrPersistence    = &Error{Code: "PERSISTENCE_FAILED", Message: "storage operation failed"}
	ErrSchemaNotReady = &Error{Code: "SCHEMA_NOT_READY", Message: "storage schema bootstrap failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
