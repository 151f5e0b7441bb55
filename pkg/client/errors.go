package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowdeck/flowdeck-go/pkg/ratelimit"
)

// ErrContextCancelled is returned when the context is cancelled during retry.
var ErrContextCancelled = errors.New("context cancelled")

// ErrorKind is the caller-facing classification of a failure. It is derived
// purely from the failure variant and, for API errors, the HTTP status.
type ErrorKind string

const (
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindNotFound           ErrorKind = "not_found"
	KindFailedPrecondition ErrorKind = "failed_precondition"
	KindResourceExhausted  ErrorKind = "resource_exhausted"
	KindUnavailable        ErrorKind = "unavailable"
	KindUnknown            ErrorKind = "unknown"
)

// TransportError represents a connection-level failure (DNS, refused
// connection, reset) before any response arrived.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on retry.
// Transport failures are always retryable.
func (e *TransportError) Retryable() bool { return true }

// Kind returns the caller-facing error kind.
func (e *TransportError) Kind() ErrorKind { return KindUnavailable }

// TimeoutError represents an attempt deadline that expired before a
// response arrived. Kept distinct from TransportError so callers can
// tell a slow server from an unreachable one.
type TimeoutError struct {
	// Elapsed is the deadline that was exceeded.
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %v", e.Elapsed)
}

// Retryable reports whether the failure may succeed on retry.
// Timeouts are always retryable.
func (e *TimeoutError) Retryable() bool { return true }

// Kind returns the caller-facing error kind.
func (e *TimeoutError) Kind() ErrorKind { return KindUnavailable }

// APIError represents a response the Flowdeck API returned with status >= 400.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the machine-readable error code from the response body,
	// if the body carried one.
	Code string

	// Message is the human-readable message from the response body,
	// falling back to the HTTP status line.
	Message string

	// Raw holds the decoded JSON body, or the body text when it was not JSON.
	Raw any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("flowdeck api error (status %d, code %s): %s",
			e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("flowdeck api error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure may succeed on retry.
// Only 408, 429 and 5xx responses are retryable; other 4xx responses
// will fail the same way every time.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Kind returns the caller-facing error kind for the response status.
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return KindInvalidArgument
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return KindPermissionDenied
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode == http.StatusConflict:
		return KindFailedPrecondition
	case e.StatusCode == http.StatusTooManyRequests:
		return KindResourceExhausted
	case e.StatusCode >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// failure is the common surface of the three error variants. Exactly one
// variant classifies any failed exchange; classification happens once, at
// the transport boundary.
type failure interface {
	error
	Retryable() bool
	Kind() ErrorKind
}

// Retryable reports whether err may succeed on retry. Errors outside the
// taxonomy are treated as permanent.
func Retryable(err error) bool {
	var f failure
	if errors.As(err, &f) {
		return f.Retryable()
	}
	return false
}

// transient reports whether err is a connectivity or timeout failure,
// i.e. one where the request may never have reached the server.
func transient(err error) bool {
	var te *TransportError
	var to *TimeoutError
	return errors.As(err, &te) || errors.As(err, &to)
}

// KindOf resolves any error returned by the client to a caller-facing
// kind. Admission-control rejections surface as resource exhaustion
// without ever having been dispatched.
func KindOf(err error) ErrorKind {
	var f failure
	if errors.As(err, &f) {
		return f.Kind()
	}
	if errors.Is(err, ratelimit.ErrQueueFull) || errors.Is(err, ratelimit.ErrEvicted) {
		return KindResourceExhausted
	}
	return KindUnknown
}
