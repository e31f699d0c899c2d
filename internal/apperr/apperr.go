// Package apperr is the error taxonomy shared by the marketplace core and
// the HTTP layer.
//
// Every rejection carries a Kind so callers can pick a specific message
// instead of "an error occurred". Compare with errors.Is against the
// sentinel values below:
//
//	if errors.Is(err, apperr.ErrMessagingRestricted) { ... }
//
// MessagingRestricted is a sub-kind of Forbidden: errors.Is(err, ErrForbidden)
// is also true for it.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind names one class of rejection.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindMessagingRestricted Kind = "messaging_restricted"
	KindInvalidState        Kind = "invalid_state"
	KindDuplicateOffer      Kind = "duplicate_offer"
	KindDuplicateReview     Kind = "duplicate_review"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindInvalid             Kind = "invalid"
)

// Sentinels, one per kind.
var (
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated, Message: "not authenticated"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "not authorized"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrMessagingRestricted = &Error{Kind: KindMessagingRestricted, Message: "messaging is only available after an offer has been accepted"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrDuplicateOffer      = &Error{Kind: KindDuplicateOffer, Message: "you already made an offer on this ticket"}
	ErrDuplicateReview     = &Error{Kind: KindDuplicateReview, Message: "you already reviewed this ticket"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrInvalid             = &Error{Kind: KindInvalid, Message: "validation failed"}
)

// Error is a classified rejection. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for KindRateLimited: how long until the oldest
	// report in the window ages out.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Is matches any *Error of the same Kind, so a formatted error still
// satisfies errors.Is(err, ErrNotFound). MessagingRestricted also matches
// the Forbidden sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindMessagingRestricted && t.Kind == KindForbidden
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated, Unauthorized, ... build an error of the given kind with
// a caller-facing message.
func Unauthenticated(format string, args ...any) error {
	return newf(KindUnauthenticated, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) error { return newf(KindForbidden, format, args...) }

func MessagingRestricted(format string, args ...any) error {
	return newf(KindMessagingRestricted, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newf(KindInvalidState, format, args...)
}

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func Invalid(format string, args ...any) error { return newf(KindInvalid, format, args...) }

// RateLimited reports a throttle hit; retryAfter tells the caller when the
// window frees up.
func RateLimited(retryAfter time.Duration, format string, args ...any) error {
	e := newf(KindRateLimited, format, args...)
	e.RetryAfter = retryAfter
	return e
}

// KindOf returns the Kind of err, or "" for unclassified errors (store
// failures, bugs).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
