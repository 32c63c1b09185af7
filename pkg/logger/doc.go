// Package logger builds slog loggers with context extraction and optional
// Sentry fan-out.
//
// A ContextExtractor pulls one attribute out of a context on every record, so
// values such as a session or request ID follow the context instead of being
// threaded through every call:
//
//	log := logger.New(dispatch.SessionIDExtractor(), middlewares.RequestIDExtractor())
//	log.InfoContext(s.Context(), "order created", slog.String("order_id", id))
//
// NewWithSentry sends errors to Sentry as issues and warnings as logs. With an
// empty DSN it returns a stdout-only logger, so development and production
// share one code path. Register SentryFlush as a shutdown hook to deliver
// buffered events before exit.
//
// NewNope returns a logger that discards everything; the dispatch service uses
// it when none is configured.
package logger
