package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `config:"dsn"`
	Environment string `config:"environment"`
	// MinLevel is the lowest level stored as Sentry logs. Errors always create issues.
	MinLevel slog.Level `config:"min_level"`
}

// NewWithSentry creates a logger writing to stdout and Sentry.
// An empty DSN, or a failed Sentry init, yields a stdout-only logger.
func NewWithSentry(cfg SentryConfig, opts ...Option) *slog.Logger {
	o := buildOptions(opts)
	stdout := o.handler()

	if cfg.DSN == "" {
		return slog.New(NewLogHandlerDecorator(stdout, o.extractors...))
	}

	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: env,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return slog.New(NewLogHandlerDecorator(stdout, o.extractors...))
	}

	logLevel := []slog.Level{slog.LevelWarn, slog.LevelError}
	if cfg.MinLevel >= slog.LevelError {
		logLevel = []slog.Level{slog.LevelError}
	}
	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevel,
	}.NewSentryHandler(context.Background())

	return slog.New(NewLogHandlerDecorator(newFanout(stdout, sentryHandler), o.extractors...))
}

// SentryFlush returns a shutdown hook that waits for buffered Sentry events.
func SentryFlush() func(context.Context) error {
	return func(ctx context.Context) error {
		timeout := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !sentry.Flush(timeout) {
			return ErrSentryFlushTimeout
		}
		return nil
	}
}
