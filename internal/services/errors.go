package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. Handlers map kinds to status codes.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUnauthorized  Kind = "unauthorized"
	KindInvalidCode   Kind = "invalid_code"
	KindBadRequest    Kind = "bad_request"
	KindMisconfigured Kind = "misconfigured"
)

// Error is the failure returned by every service operation. Message is safe
// to show to clients; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, cause []error) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(cause) > 0 {
		e.Err = cause[0]
	}
	return e
}

func NotFound(message string, cause ...error) *Error {
	return newError(KindNotFound, message, cause)
}

func Conflict(message string, cause ...error) *Error {
	return newError(KindConflict, message, cause)
}

func Unauthorized(message string, cause ...error) *Error {
	return newError(KindUnauthorized, message, cause)
}

func InvalidCode(message string, cause ...error) *Error {
	return newError(KindInvalidCode, message, cause)
}

func BadRequest(message string, cause ...error) *Error {
	return newError(KindBadRequest, message, cause)
}

func Misconfigured(message string, cause ...error) *Error {
	return newError(KindMisconfigured, message, cause)
}

// KindOf returns the kind of the first *Error in err's chain, or "" for
// unclassified failures.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
