// Package apperror defines the typed error kinds returned by marketplace operations.
package apperror

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeConflict        Code = "CONFLICT"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeExternalFailure Code = "EXTERNAL_FAILURE"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInternal        Code = "INTERNAL"
)

// HTTPStatus maps the code to the status an API response should carry.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeExternalFailure:
		return http.StatusBadGateway
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the same request unchanged.
// Only collaborator failures qualify; every other kind needs the caller to change something.
func (c Code) Retryable() bool {
	return c == CodeExternalFailure
}

// Error is a domain error with a code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrNotFound        = New(CodeNotFound, "not found")
	ErrForbidden       = New(CodeForbidden, "forbidden")
	ErrInvalidState    = New(CodeInvalidState, "invalid state")
	ErrConflict        = New(CodeConflict, "conflict")
	ErrValidation      = New(CodeValidation, "validation failed")
	ErrExternalFailure = New(CodeExternalFailure, "external failure")
	ErrUnauthorized    = New(CodeUnauthorized, "unauthorized")
)

func NotFound(what string) *Error       { return New(CodeNotFound, what+" not found") }
func Forbidden(msg string) *Error       { return New(CodeForbidden, msg) }
func InvalidState(msg string) *Error    { return New(CodeInvalidState, msg) }
func Conflict(msg string) *Error        { return New(CodeConflict, msg) }
func Validation(msg string) *Error      { return New(CodeValidation, msg) }
func Unauthorized(msg string) *Error    { return New(CodeUnauthorized, msg) }
func External(msg string, cause error) *Error {
	return Wrap(CodeExternalFailure, msg, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns a message safe to show to API clients.
// Errors without a code are reported generically.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
