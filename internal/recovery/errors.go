package recovery

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure for recovery purposes.
type ErrorType string

const (
	TypeConnectionFailed     ErrorType = "CONNECTION_FAILED"
	TypeAuthenticationFailed ErrorType = "AUTHENTICATION_FAILED"
	TypeNetworkError         ErrorType = "NETWORK_ERROR"
	TypeTimeout              ErrorType = "TIMEOUT"
	TypeServerError          ErrorType = "SERVER_ERROR"
	TypeInvalidData          ErrorType = "INVALID_DATA"
	TypeUnknown              ErrorType = "UNKNOWN"
)

// ClassifiedError carries a failure type and whether retrying can help.
type ClassifiedError struct {
	Type      ErrorType
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Type)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// New creates a classified error wrapping err.
func New(t ErrorType, retryable bool, err error) *ClassifiedError {
	return &ClassifiedError{Type: t, Retryable: retryable, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(t ErrorType, retryable bool, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{Type: t, Retryable: retryable, Err: fmt.Errorf(format, args...)}
}

// Classify extracts the ClassifiedError from err, or wraps it as UNKNOWN.
// UNKNOWN errors are never retryable automatically.
func Classify(err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{Type: TypeUnknown, Retryable: false, Err: err}
}
