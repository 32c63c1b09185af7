package internal

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// chain runs stages in order over one session. Each stage gets a
// continuation that starts the next stage; calling it more than once is
// ignored. A closed session stops the chain before the next stage runs.
func chain(logger *slog.Logger, onPanic func(*Session, error), stages ...Stage) func(*Session) {
	return func(s *Session) {
		runStage(logger, onPanic, stages, 0, s)
	}
}

func runStage(logger *slog.Logger, onPanic func(*Session, error), stages []Stage, i int, s *Session) {
	if i >= len(stages) || s.IsClosed() {
		return
	}

	var called atomic.Bool
	next := func(s *Session) {
		if !called.CompareAndSwap(false, true) {
			logger.Warn("pipeline continuation called more than once",
				slog.String("session_id", s.ID()),
				slog.String("stage", stageName(i)),
			)
			return
		}
		runStage(logger, onPanic, stages, i+1, s)
	}

	defer func() {
		if v := recover(); v != nil {
			onPanic(s, &PanicError{Value: v, Stack: debug.Stack()})
		}
	}()
	stages[i](s, next)
}

// recoverHook calls fn, converting a panic into an error.
func recoverHook(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

// callHandler runs h and converts a panic into a *PanicError.
func callHandler(h HandlerFunc, s *Session) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return h(s)
}

// stageName is used in logs.
func stageName(i int) string {
	names := [...]string{"load", "service_auth", "route", "resource_auth", "resolve", "handler"}
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("stage_%d", i)
}
