package internal

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Sessions derive their loggers from it.
//
// Example:
//
//	dispatch.NewService(
//	    dispatch.WithLogger(logger.New(dispatch.SessionIDExtractor())),
//	)
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuthenticationHandler sets the service-level gate.
func WithAuthenticationHandler(h AuthHandler) Option {
	return func(s *Service) {
		s.authHandler = h
	}
}

// WithErrorHandler sets the service-level error hook.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Service) {
		s.errorHandler = h
	}
}

// WithReadyHandler sets the callback run once the listener is bound.
//
// Example:
//
//	ready := make(chan net.Addr, 1)
//	dispatch.NewService(
//	    dispatch.WithReadyHandler(func(s *dispatch.Service) { ready <- s.Addr() }),
//	)
func WithReadyHandler(h ReadyHandler) Option {
	return func(s *Service) {
		s.readyHandler = h
	}
}

// WithSessionManager replaces the default session manager.
// Settings that configure sessions are then up to the caller.
func WithSessionManager(m SessionManager) Option {
	return func(s *Service) {
		if m != nil {
			s.sessions = m
		}
	}
}

// WithParser replaces the HTTP/1.x request parser.
func WithParser(p Parser) Option {
	return func(s *Service) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithStatusLookup replaces the reason phrase table.
func WithStatusLookup(fn StatusLookup) Option {
	return func(s *Service) {
		if fn != nil {
			s.statusText = fn
		}
	}
}

// WithTracerProvider sets the provider for session spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithListener makes the service accept on ln instead of binding
// Settings.Address. The listener is closed when the service stops.
func WithListener(ln net.Listener) Option {
	return func(s *Service) {
		if ln != nil {
			s.listen = func(context.Context, string, string) (net.Listener, error) {
				return ln, nil
			}
		}
	}
}
