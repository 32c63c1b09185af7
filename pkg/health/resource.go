package health

import (
	"net/http"

	"github.com/dmitrymomot/dispatch"
)

// Default probe paths.
const (
	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)

// acceptsJSON selects the JSON handler ahead of the plain text one.
// Requests without an Accept header get JSON as well.
var acceptsJSON = dispatch.MustFilter("Accept", `.*application/json.*`)

// LivenessResource answers GET and HEAD with 200 while the process runs.
// Pass no paths to use LivenessPath.
func LivenessResource(paths ...string) *dispatch.Resource {
	return probe(paths, LivenessPath, func(*dispatch.Session) *Response {
		return &Response{Status: StatusHealthy}
	})
}

// ReadinessResource answers 200 when every check passes and 503 otherwise.
// Pass no paths to use ReadinessPath.
//
// Example:
//
//	svc.Publish(health.ReadinessResource(health.Checks{
//	    "redis": redis.Healthcheck(client),
//	}, nil))
func ReadinessResource(checks Checks, paths []string, opts ...Option) *dispatch.Resource {
	cfg := newConfig(opts...)
	return probe(paths, ReadinessPath, func(s *dispatch.Session) *Response {
		return run(s.Context(), checks, cfg)
	})
}

func probe(paths []string, fallback string, eval func(*dispatch.Session) *Response) *dispatch.Resource {
	if len(paths) == 0 {
		paths = []string{fallback}
	}
	r := dispatch.NewResource(paths...)

	asJSON := func(s *dispatch.Session) error {
		resp := eval(s)
		return s.CloseJSON(statusOf(resp), resp)
	}
	asText := func(s *dispatch.Session) error {
		if s.Request().Query.Get("format") == "json" {
			return asJSON(s)
		}
		resp := eval(s)
		body := "OK"
		if !resp.Healthy() {
			body = "Service Unavailable"
		}
		return s.CloseString(statusOf(resp), body, http.Header{"Content-Type": {"text/plain; charset=utf-8"}})
	}

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		// Registration only fails for unknown verbs.
		_ = r.SetMethodHandler(method, asJSON, acceptsJSON)
		_ = r.SetMethodHandler(method, asText)
	}
	return r
}

func statusOf(resp *Response) int {
	if resp.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
