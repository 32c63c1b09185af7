package middlewares

import (
	"log/slog"
	"runtime"

	"github.com/dmitrymomot/dispatch"
)

// DefaultStackSize is the default maximum stack trace size in bytes.
const DefaultStackSize = 4096

// RecoverConfig configures the recover decorator.
type RecoverConfig struct {
	StackSize         int  // Max stack trace size (default: 4096)
	DisablePrintStack bool // Disable stack trace in logs
}

// RecoverOption configures RecoverConfig.
type RecoverOption func(*RecoverConfig)

// WithRecoverStackSize sets the maximum stack trace size.
func WithRecoverStackSize(size int) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.StackSize = size
	}
}

// WithRecoverDisablePrintStack disables capturing the stack trace.
func WithRecoverDisablePrintStack() RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.DisablePrintStack = true
	}
}

// Recover wraps h so a panic is logged on the session logger and returned
// as a *dispatch.PanicError. The engine recovers handler panics as well;
// Recover bounds the captured stack and logs at the point of failure.
func Recover(h dispatch.HandlerFunc, opts ...RecoverOption) dispatch.HandlerFunc {
	cfg := &RecoverConfig{
		StackSize: DefaultStackSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(s *dispatch.Session) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			var stack []byte
			// Allocate only when stack traces are enabled.
			if !cfg.DisablePrintStack && cfg.StackSize > 0 {
				stack = make([]byte, cfg.StackSize)
				stack = stack[:runtime.Stack(stack, false)]
			}

			attrs := []any{slog.Any("panic", r)}
			if stack != nil {
				attrs = append(attrs, slog.String("stack", string(stack)))
			}
			s.Logger().Error("panic recovered", attrs...)

			err = &dispatch.PanicError{Value: r, Stack: stack}
		}()

		return h(s)
	}
}
