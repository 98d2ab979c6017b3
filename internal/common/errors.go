package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	// ErrEnvironment marks failures no retry can fix (missing inputs,
	// unreadable paths, missing binaries). These propagate to the caller.
	ErrEnvironment = errors.New("environment error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// EnvironmentError wraps cause so that errors.Is(err, ErrEnvironment) holds
// while the original cause stays reachable.
func EnvironmentError(message string, cause error) error {
	return &AppError{Code: "ENVIRONMENT", Message: message, Cause: errors.Join(ErrEnvironment, cause)}
}

// IsEnvironment reports whether err is an environment-level failure.
func IsEnvironment(err error) bool {
	return errors.Is(err, ErrEnvironment)
}
