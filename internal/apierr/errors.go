// Package apierr defines the error taxonomy shared by the ingestion API,
// the fanout hub, and the periodic workers. Handlers recover these with
// errors.Is/errors.As at the HTTP boundary; nothing below that boundary
// needs to know about status codes.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the coarse error family from spec §7.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindRateLimited    Kind = "rate_limited"
	KindAuthentication Kind = "authentication"
	KindTimeout        Kind = "timeout"
	KindDependency     Kind = "dependency"
)

// Error wraps a Kind with a message and optional per-field validation detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, apierr.ErrNotFound) style sentinel comparisons
// by kind rather than by identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Sentinel values for errors.Is comparisons against a bare Kind.
var (
	ErrValidation     = newErr(KindValidation, "validation failed")
	ErrNotFound       = newErr(KindNotFound, "not found")
	ErrConflict       = newErr(KindConflict, "conflict")
	ErrRateLimited    = newErr(KindRateLimited, "rate limited")
	ErrAuthentication = newErr(KindAuthentication, "authentication failed")
	ErrTimeout        = newErr(KindTimeout, "timeout")
	ErrDependency     = newErr(KindDependency, "dependency failure")
)

// Validation builds a validation error carrying per-field detail, the
// shape the API surfaces verbatim to callers per spec §4.2.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field is a convenience for a single-field validation error.
func Field(field, reason string) *Error {
	return Validation("validation failed", map[string]string{field: reason})
}

// NotFound builds a not-found error naming the missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Conflict builds a conflict error. The store uses it for a duplicate
// active blocking pair and for a subtask status change outside the
// allowed transitions; a self-block is a validation error instead.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// RateLimited builds a rate-limit error.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// Authentication builds an authentication error.
func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Timeout builds a timeout error.
func Timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

// Dependency wraps an underlying store/transport failure as an internal
// dependency error; the cause is logged but never shown to the caller.
func Dependency(msg string, cause error) *Error {
	return &Error{Kind: KindDependency, Message: msg, cause: cause}
}

// As is a small helper for handlers that want the concrete *Error out of
// a generic error without importing "errors" everywhere.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
