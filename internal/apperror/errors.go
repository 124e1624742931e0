package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the boundary layer
type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindInvalidState Kind = "INVALID_STATE"
	KindConflict     Kind = "CONFLICT"
	KindInternal     Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindInvalidState: http.StatusUnprocessableEntity,
	KindConflict:     http.StatusConflict,
	KindInternal:     http.StatusInternalServerError,
}

// HTTPStatus maps a kind to the status code the API responds with
func (k Kind) HTTPStatus() int {
	if status, ok := statusByKind[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a typed failure carrying a human-readable message
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{kind: kind, message: message, cause: err}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }

// Kind returns the error classification
func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the human-readable message
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the typed error from a chain, or nil
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// KindOf classifies any error; untyped errors are internal
func KindOf(err error) Kind {
	if typed := As(err); typed != nil {
		return typed.Kind()
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
