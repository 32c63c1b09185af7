package middlewares

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatch"
	"github.com/dmitrymomot/dispatch/pkg/logger"
)

// requestIDKey is the session value key for the request ID.
type requestIDKey struct{}

// DefaultRequestIDHeaders are the headers checked (in order) for an existing request ID.
var DefaultRequestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

// RequestIDConfig configures the request ID gate.
type RequestIDConfig struct {
	Generator      func() string // ID generator function
	ResponseHeader string        // Response header name
	Headers        []string      // Headers to check for existing ID (in order)
}

// RequestIDOption configures RequestIDConfig.
type RequestIDOption func(*RequestIDConfig)

// WithRequestIDHeaders sets the headers to check for existing request IDs.
func WithRequestIDHeaders(headers ...string) RequestIDOption {
	return func(cfg *RequestIDConfig) {
		cfg.Headers = headers
	}
}

// WithRequestIDGenerator sets a custom ID generator function.
func WithRequestIDGenerator(gen func() string) RequestIDOption {
	return func(cfg *RequestIDConfig) {
		if gen != nil {
			cfg.Generator = gen
		}
	}
}

// WithRequestIDResponseHeader sets the response header name.
func WithRequestIDResponseHeader(header string) RequestIDOption {
	return func(cfg *RequestIDConfig) {
		cfg.ResponseHeader = header
	}
}

// RequestID returns a gate that assigns a request ID to each session.
// An ID sent by the client under one of the configured headers is reused;
// otherwise a UUID is generated. The ID is stored on the session and staged
// as a response header. The gate never rejects.
func RequestID(opts ...RequestIDOption) dispatch.AuthHandler {
	cfg := &RequestIDConfig{
		Headers:        DefaultRequestIDHeaders,
		Generator:      uuid.NewString,
		ResponseHeader: "X-Request-ID",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	source := make([]dispatch.ExtractorSource, 0, len(cfg.Headers))
	for _, h := range cfg.Headers {
		source = append(source, dispatch.FromHeader(h))
	}
	extractor := dispatch.NewExtractor(source...)

	return func(s *dispatch.Session, next func(*dispatch.Session)) {
		// Upstream IDs are kept so traces line up across hops.
		reqID, ok := extractor.Extract(s)
		if !ok {
			reqID = cfg.Generator()
		}

		s.Set(requestIDKey{}, reqID)
		if cfg.ResponseHeader != "" {
			s.SetHeader(cfg.ResponseHeader, reqID)
		}
		next(s)
	}
}

// GetRequestID returns the request ID assigned by RequestID, or "".
func GetRequestID(s *dispatch.Session) string {
	if v, ok := s.Get(requestIDKey{}); ok {
		id, _ := v.(string)
		return id
	}
	return ""
}

// RequestIDExtractor returns a ContextExtractor adding "request_id" to
// records logged with a session context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v, ok := ctx.Value(requestIDKey{}).(string); ok && v != "" {
			return slog.String("request_id", v), true
		}
		return slog.Attr{}, false
	}
}
