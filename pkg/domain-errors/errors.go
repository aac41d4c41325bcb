// Package dErrors provides code-carrying domain errors. Services translate
// infrastructure sentinels (pkg/platform/sentinel) into these; transport
// translates codes into HTTP statuses. Keep messages caller-safe: no internal
// details leak through Error().
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and callers that
// branch on failure kind.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"
	CodeTimeout      Code = "timeout"
)

// Error is a domain error with a stable code and a caller-safe message. It
// wraps an optional cause for logs and errors.Is/As traversal.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with a code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and caller-safe message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCode is an alias of Is kept for call-site readability in tests.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
