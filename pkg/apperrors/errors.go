// Package apperrors defines the typed failures shared by the scheduling core.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	// TypeNotFound indicates a referenced clinic, appointment or patient does not exist.
	TypeNotFound ErrorType = "NOT_FOUND"
	// TypeValidation indicates malformed or missing input at a boundary.
	TypeValidation ErrorType = "VALIDATION"
	// TypeConflict indicates an overlapping booking or a stale version.
	TypeConflict ErrorType = "CONFLICT"
	// TypeInternal indicates an unexpected failure.
	TypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error.
func NotFound(format string, args ...any) *AppError {
	return &AppError{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(format string, args ...any) *AppError {
	return &AppError{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *AppError {
	return &AppError{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error.
func Internal(err error, message string) *AppError {
	return &AppError{Type: TypeInternal, Message: message, Err: err}
}

// Wrap attaches a cause to an error of the given type.
func Wrap(t ErrorType, err error, message string) *AppError {
	return &AppError{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first AppError in err's chain, or "" when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool { return TypeOf(err) == TypeConflict }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return TypeOf(err) == TypeNotFound }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return TypeOf(err) == TypeValidation }
