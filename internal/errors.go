package internal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for configuration, transport and routing failures.
var (
	// ErrUnsupportedMethod is returned when a handler is registered for a verb
	// outside the recognized set.
	ErrUnsupportedMethod = errors.New("dispatch: unsupported HTTP method")

	// ErrInvalidFilter is returned when a filter pattern does not compile.
	ErrInvalidFilter = errors.New("dispatch: invalid filter")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("dispatch: nil handler")

	// ErrNamespaceCollision is returned when a published resource claims a path
	// that is already routed.
	ErrNamespaceCollision = errors.New("dispatch: resource would pollute namespace")

	// ErrServiceRunning is returned by Start and the setters while the service is running.
	ErrServiceRunning = errors.New("dispatch: service is running")

	// ErrServiceNotRunning is returned by Stop when there is nothing to stop.
	ErrServiceNotRunning = errors.New("dispatch: service is not running")

	// ErrMalformedRequest is returned by a Parser for bytes that are not an HTTP request.
	ErrMalformedRequest = errors.New("dispatch: malformed request")

	// ErrBodyTooLarge is returned by a Parser when the body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("dispatch: request body too large")

	// ErrNotFound is reported to error hooks when no resource owns the request path.
	ErrNotFound = errors.New("dispatch: resource not found")

	// ErrMethodNotAllowed is reported to error hooks when no handler matches
	// the request method and filters.
	ErrMethodNotAllowed = errors.New("dispatch: method not allowed")

	// ErrNotImplemented is reserved for applications; the engine never emits it.
	ErrNotImplemented = errors.New("dispatch: method not implemented")

	// ErrSessionClosed is returned when an operation needs an open session.
	ErrSessionClosed = errors.New("dispatch: session is closed")

	// ErrSessionTimeout is reported when the sweeper closes a stalled session.
	ErrSessionTimeout = errors.New("dispatch: session timed out")
)

// MethodError describes a rejected handler registration.
type MethodError struct {
	Method string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("resource method handler set with an unsupported HTTP method %q", e.Method)
}

func (e *MethodError) Unwrap() error {
	return ErrUnsupportedMethod
}

// CollisionError lists the paths that made a publish fail.
type CollisionError struct {
	Paths []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("resource would pollute namespace, paths already published: %s", strings.Join(e.Paths, ", "))
}

func (e *CollisionError) Unwrap() error {
	return ErrNamespaceCollision
}

// PanicError represents a panic recovered from a gate, handler or hook.
type PanicError struct {
	Value any    // The panic value
	Stack []byte // Stack trace (nil if disabled)
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// HTTPError carries the status a failed session should be closed with.
// Handlers return it to pick the response status; error hooks receive it
// for routing misses.
type HTTPError struct {
	// Err is the underlying error (for logging, not exposed to clients).
	Err error

	// Message is the client-facing body. Empty means the reason phrase.
	Message string

	// Code is the HTTP status code (e.g., 404, 500).
	Code int
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return StatusText(e.Code)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Code
}

func (e *HTTPError) StatusText() string {
	return StatusText(e.Code)
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches cause to the error and returns it.
func (e *HTTPError) Wrap(cause error) *HTTPError {
	e.Err = cause
	return e
}

// Convenience constructors for the statuses the engine itself produces.

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message)
}

func ErrForbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

func ErrInternal(message string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, message)
}

// IsHTTPError reports whether err or anything it wraps is an *HTTPError.
func IsHTTPError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}

// AsHTTPError extracts the HTTPError from an error if present.
// Returns nil if the error is not an HTTPError.
func AsHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	return nil
}

// statusCoder is implemented by errors that know their response status.
type statusCoder interface {
	StatusCode() int
}

// StatusFromError returns the status a session failing with err should be
// closed with. Defaults to 500.
func StatusFromError(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code != 0 {
			return code
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionTimeout):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
