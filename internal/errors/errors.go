// Package errors provides typed service errors with stable machine-readable
// codes. Handlers map codes to HTTP statuses; services construct them at guard
// and validation boundaries.
package errors

import (
	"errors"
	"fmt"
)

// Error codes shared across the service. CONFLICT and INVALID_TRANSITION are
// deliberately distinct: CONFLICT means the caller lost a race (the operation
// may succeed on a re-read and retry), INVALID_TRANSITION means the resource's
// current state simply does not permit the operation.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUnprocessable     = "UNPROCESSABLE"
	ErrCodeInternal          = "INTERNAL"
)

// Error is a typed service error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound builds a NOT_FOUND error for a resource id.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// InvalidInput builds an INVALID_INPUT error for a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Field: field}
}

// Conflict builds a CONFLICT error. Used for lost races: the losing actor
// can re-read the resource and decide whether to retry.
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// InvalidTransition builds an INVALID_TRANSITION error for operations the
// resource's current state does not permit. Not retryable as-is.
func InvalidTransition(message string) *Error {
	return &Error{Code: ErrCodeInvalidTransition, Message: message}
}

// Unprocessable builds an UNPROCESSABLE error for requests that are well
// formed but cannot be acted on (e.g. no approval rule covers the amount).
func Unprocessable(message string) *Error {
	return &Error{Code: ErrCodeUnprocessable, Message: message}
}

// CodeOf returns the code of err, or ErrCodeInternal when err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// FieldOf returns the offending field name of err, or "" when none is set.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
