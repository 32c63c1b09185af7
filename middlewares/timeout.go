package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/dispatch"
)

// DefaultTimeout is the default handler timeout.
const DefaultTimeout = 30 * time.Second

// timeoutContextKey stores the deadline-bound context on the session.
type timeoutContextKey struct{}

// Timeout wraps h so that it fails with a *TimeoutError if it has neither
// returned nor closed the session within d. The engine then closes the
// session with 503. A non-positive d uses DefaultTimeout.
//
// The handler goroutine keeps running after the timeout. Handlers should
// watch GetTimeoutContext(s).Done(); their later Close calls are no-ops.
func Timeout(d time.Duration, h dispatch.HandlerFunc) dispatch.HandlerFunc {
	if d <= 0 {
		d = DefaultTimeout
	}

	return func(s *dispatch.Session) error {
		ctx, cancel := context.WithTimeout(s.Context(), d)
		defer cancel()

		s.Set(timeoutContextKey{}, ctx)

		done := make(chan error, 1)
		go func() {
			done <- h(s)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.IsOpen() {
				s.Logger().Warn("handler timeout", slog.Duration("timeout", d))
				return &TimeoutError{Duration: d}
			}
			// The session closed first, either by the handler or the sweeper.
			return nil
		}
	}
}

// GetTimeoutContext returns the context bound by Timeout, or the session
// context when the handler is not wrapped.
func GetTimeoutContext(s *dispatch.Session) context.Context {
	if v, ok := s.Get(timeoutContextKey{}); ok {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return s.Context()
}
