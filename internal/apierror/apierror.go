// Package apierror defines the closed set of error kinds that domain
// packages return and that the HTTP layer maps to status codes exactly
// once, per spec.md §7. Domain packages never write to an
// http.ResponseWriter; they return *Error and let the caller map it.
package apierror

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error categories.
type Kind string

const (
	KindInvalidInput            Kind = "invalid_input"
	KindUnauthorized            Kind = "unauthorized"
	KindForbidden                Kind = "forbidden"
	KindInsufficientBalance     Kind = "insufficient_balance"
	KindNotFound                Kind = "not_found"
	KindDeviceConflict          Kind = "device_conflict"
	KindRateLimitExceeded       Kind = "rate_limit_exceeded"
	KindCannotRevokeActivated   Kind = "cannot_revoke_activated"
	KindUpstreamTimeout         Kind = "upstream_timeout"
	KindUpstreamTransport       Kind = "upstream_transport_error"
	KindInternal                Kind = "internal_error"
)

// Error carries a Kind plus a user-facing message and optional structured
// extras (e.g. retry_after, limit, window for rate limit errors).
type Error struct {
	Kind    Kind
	Message string
	Extra   map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithExtra attaches structured extras and returns the same *Error for chaining.
func (e *Error) WithExtra(key string, value interface{}) *Error {
	if e.Extra == nil {
		e.Extra = make(map[string]interface{})
	}
	e.Extra[key] = value
	return e
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}
