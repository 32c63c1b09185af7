package internal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/dispatch/pkg/logger"
)

// ExtractorSource extracts a value from a session.
// Returns the value and true if found, or ("", false) if not present.
type ExtractorSource = func(*Session) (string, bool)

// Extractor tries multiple sources in order and returns the first match.
type Extractor struct {
	sources []ExtractorSource
}

// NewExtractor creates an Extractor that tries the given sources in order.
func NewExtractor(sources ...ExtractorSource) Extractor {
	return Extractor{sources: sources}
}

// Extract iterates sources in order and returns the first non-empty value.
// Returns ("", false) if all sources miss.
func (e Extractor) Extract(s *Session) (string, bool) {
	for _, src := range e.sources {
		if v, ok := src(s); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// FromHeader returns a source that reads the first value of a request header.
func FromHeader(name string) ExtractorSource {
	return func(s *Session) (string, bool) {
		req := s.Request()
		if req == nil {
			return "", false
		}
		v := req.Headers.Get(name)
		if v == "" {
			return "", false
		}
		return v, true
	}
}

// FromQuery returns a source that reads from a query parameter.
func FromQuery(name string) ExtractorSource {
	return func(s *Session) (string, bool) {
		req := s.Request()
		if req == nil {
			return "", false
		}
		v := req.Query.Get(name)
		if v == "" {
			return "", false
		}
		return v, true
	}
}

// FromValue returns a source that reads a value stored with Session.Set.
// Non-string values are formatted with fmt.Sprint.
func FromValue(key any) ExtractorSource {
	return func(s *Session) (string, bool) {
		val, ok := s.Get(key)
		if !ok || val == nil {
			return "", false
		}
		str, ok := val.(string)
		if !ok {
			str = fmt.Sprint(val)
		}
		if str == "" {
			return "", false
		}
		return str, true
	}
}

// FromBearerToken returns a source that reads a Bearer token from the Authorization header.
// Uses case-insensitive comparison on the "Bearer " prefix.
func FromBearerToken() ExtractorSource {
	return func(s *Session) (string, bool) {
		auth, ok := FromHeader("Authorization")(s)
		if !ok || len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			return "", false
		}
		token := strings.TrimSpace(auth[7:])
		if token == "" {
			return "", false
		}
		return token, true
	}
}

// SessionIDExtractor returns a logger.ContextExtractor adding session_id to
// records logged with a session context.
//
// Example:
//
//	log := logger.New(dispatch.SessionIDExtractor())
//	log.InfoContext(s.Context(), "user loaded")
func SessionIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := SessionIDFromContext(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return slog.String("session_id", id), true
	}
}
