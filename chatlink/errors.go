package chatlink

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Connection lifecycle
	ErrorHandshake
	ErrorNotConnected
	ErrorAlreadyConnected
	ErrorDisconnected
	ErrorConnection

	// Terminal for the reconnection policy
	ErrorAuthRejected
	ErrorReconnectExhausted

	// Payload and configuration
	ErrorServer
	ErrorSerialization
	ErrorInvalidConfig
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorHandshake:
		return "handshake_error"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorAlreadyConnected:
		return "already_connected"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorConnection:
		return "connection_error"
	case ErrorAuthRejected:
		return "auth_rejected"
	case ErrorReconnectExhausted:
		return "reconnect_exhausted"
	case ErrorServer:
		return "server_error"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrHandshake          = &Error{Code: ErrorHandshake}
	ErrNotConnected       = &Error{Code: ErrorNotConnected}
	ErrAlreadyConnected   = &Error{Code: ErrorAlreadyConnected}
	ErrAuthRejected       = &Error{Code: ErrorAuthRejected}
	ErrReconnectExhausted = &Error{Code: ErrorReconnectExhausted}
	ErrServer             = &Error{Code: ErrorServer}
)

// Error renders "code: message: cause", leaving out empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface for error comparison.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with an Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	var le *Error
	if !errors.As(err, &le) {
		return false
	}
	switch le.Code {
	case ErrorHandshake, ErrorDisconnected, ErrorConnection, ErrorNotConnected:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err ends the reconnection cycle. The client
// stays disconnected until Connect is called again.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrReconnectExhausted)
}
