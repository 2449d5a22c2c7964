// Package brokererr provides the §7 error-kind taxonomy as a single typed
// error, letting callers at the service/CLI boundary dispatch on Kind
// (for exit codes, HTTP-ish status mapping, user-facing messages) without
// string-matching the lower layers' sentinel errors.
package brokererr

import (
	"errors"
	"fmt"
)

// Kind is one of the §7 error kinds.
type Kind string

const (
	KindInvalidInput          Kind = "InvalidInput"
	KindUnauthenticated       Kind = "Unauthenticated"
	KindAccessDenied          Kind = "AccessDenied"
	KindConstraintUnsatisfied Kind = "ConstraintUnsatisfied"
	KindConstraintFailed      Kind = "ConstraintFailed"
	KindNotFound              Kind = "NotFound"
	KindConflict              Kind = "Conflict"
	KindTokenInvalid          Kind = "TokenInvalid"
	KindTokenExpired          Kind = "TokenExpired"
	KindUpstreamError         Kind = "UpstreamError"
)

// Error is a §7 error kind wrapping the underlying cause, plus an optional
// display name for kinds that name the thing that failed (a
// ConstraintUnsatisfied's constraint, an InvalidInput's offending field).
type Error struct {
	Kind  Kind
	Name  string // offending constraint or input display name, if any
	Cause error
	Retry bool // set for UpstreamError when the caller may retry
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Name, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Named wraps cause as kind, naming the offending constraint/input.
func Named(kind Kind, name string, cause error) *Error {
	return &Error{Kind: kind, Name: name, Cause: cause}
}

// Retryable wraps cause as KindUpstreamError with the retry hint set.
func Retryable(cause error) *Error {
	return &Error{Kind: KindUpstreamError, Cause: cause, Retry: true}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to KindUpstreamError for anything uncategorized — the core never
// swallows an error silently, and every escape from the core's boundary
// must be dispatchable by a caller (§7).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamError
}
