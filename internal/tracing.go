package internal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName  = "github.com/dmitrymomot/dispatch"
	sessionSpan = "dispatch.session"
)

func tracerFrom(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// startSessionSpan starts the span covering one accepted connection.
func startSessionSpan(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, sessionSpan, trace.WithSpanKind(trace.SpanKindServer))
}

// endSpanOnClose ends span with the response status once s closes.
func endSpanOnClose(s *Session, span trace.Span) {
	span.SetAttributes(attribute.String("dispatch.session_id", s.ID()))
	s.OnClose(func(s *Session) {
		status := s.Status()
		if status > 0 {
			span.SetAttributes(attribute.Int("http.status_code", status))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, StatusText(status))
		}
		span.End()
	})
}

// annotateRequest records the parsed request on the active span.
func annotateRequest(s *Session) {
	req := s.Request()
	if req == nil {
		return
	}
	trace.SpanFromContext(s.Context()).SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.Path),
		attribute.String("net.peer.addr", req.RemoteAddr),
	)
}

// annotateRoute records the matched route.
func annotateRoute(s *Session, route string) {
	trace.SpanFromContext(s.Context()).SetAttributes(attribute.String("http.route", route))
}

// recordError marks the session span as failed.
func recordError(s *Session, err error) {
	span := trace.SpanFromContext(s.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
