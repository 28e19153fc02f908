// Package apperr defines the typed errors returned by the service layer.
// Every failure carries an HTTP-style status code and a caller-facing
// message; the transport layer serializes them as-is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure with an HTTP-style status code. Err, when set, holds
// the underlying cause and is reachable through errors.Unwrap; it is never
// serialized to callers.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause attaches the underlying cause and returns e for chaining:
//
//	apperr.UploadFailed("avatar upload failed").WithCause(err)
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// New creates an Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap attaches an underlying cause to a new Error.
func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// Constructors for the error taxonomy.

func InvalidInput(message string) *Error { return New(http.StatusBadRequest, message) }
func Conflict(message string) *Error     { return New(http.StatusConflict, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func UploadFailed(message string) *Error { return New(http.StatusBadRequest, message) }

func Internal(err error) *Error {
	return Wrap(http.StatusInternalServerError, "internal error", err)
}

// StatusOf extracts the status code from err, or 500 when err is not an
// *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf extracts the caller-facing message from err. Non-typed errors
// collapse to a generic message so internals never leak outward.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HasStatus reports whether err is an *Error with the given status code.
func HasStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
