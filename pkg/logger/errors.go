package logger

import "errors"

// ErrSentryFlushTimeout is returned when buffered Sentry events were not delivered in time.
var ErrSentryFlushTimeout = errors.New("logger: sentry flush timed out")
