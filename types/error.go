package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Configuration error codes. These are detected before any step runs and are
// never routed to a workflow's exception handler.
const (
	ErrConfiguration       ErrorCode = "CONFIGURATION"
	ErrUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"
	ErrAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
)

// Runtime error codes
const (
	ErrStepExecution ErrorCode = "STEP_EXECUTION"
	ErrExpression    ErrorCode = "EXPRESSION"
	ErrScheduler     ErrorCode = "SCHEDULER"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and the step it
// originated from.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Step != "" {
		prefix = fmt.Sprintf("[%s] step %q", e.Code, e.Step)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStep records the step the error belongs to.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsConfigurationError reports whether err was raised while binding a
// definition, as opposed to while executing it.
func IsConfigurationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrConfiguration, ErrUnresolvedReference, ErrAgentNotFound:
		return true
	}
	return false
}
