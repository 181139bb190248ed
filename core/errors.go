package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a runtime error into the shared taxonomy. Kinds are
// coarse by design; callers branch on kind, not on message text.
type ErrorKind int

const (
	// KindConfiguration marks invalid configuration caught at validate time.
	KindConfiguration ErrorKind = iota
	// KindRouting marks routing failures (no route, hop limit, unmatched predicate).
	KindRouting
	// KindDispatch marks delivery failures (channel closed, recipient absent, serialization).
	KindDispatch
	// KindBackpressure marks buffer-full or lag conditions under the Error policy.
	KindBackpressure
	// KindExecution marks a node or agent body returning an error.
	KindExecution
	// KindTimeout marks a deadline expiry.
	KindTimeout
	// KindCancelled marks cooperative cancellation.
	KindCancelled
	// KindPlugin marks errors raised by plugin code.
	KindPlugin
	// KindBackendUnavailable marks an unhealthy or unreachable gateway backend.
	KindBackendUnavailable
	// KindInternal marks invariant violations. Always logged and surfaced.
	KindInternal
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindRouting:
		return "routing"
	case KindDispatch:
		return "dispatch"
	case KindBackpressure:
		return "backpressure"
	case KindExecution:
		return "execution"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindPlugin:
		return "plugin"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind to the status code the gateway reports for it.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindConfiguration:
		return http.StatusBadRequest
	case KindRouting:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindBackpressure:
		return http.StatusTooManyRequests
	case KindBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the shared error type carrying a kind, the originating component
// and an optional wrapped cause.
type Error struct {
	Kind      ErrorKind
	Component string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality so sentinel comparisons like
// errors.Is(err, &Error{Kind: KindTimeout}) work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithComponent returns a copy of the error attributed to the given component.
func (e *Error) WithComponent(c string) *Error {
	ne := *e
	ne.Component = c
	return &ne
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause with a kind and message.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the taxonomy kind from an arbitrary error. Context errors
// map to Timeout/Cancelled; anything untyped is Internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether an error kind is eligible for retry. Timeouts
// and execution failures retry; configuration, routing, cancellation and
// internal errors never do.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindExecution, KindTimeout, KindBackpressure, KindBackendUnavailable:
		return true
	default:
		return false
	}
}
