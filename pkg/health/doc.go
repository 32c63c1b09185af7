// Package health publishes liveness and readiness probes as dispatch resources.
//
// Each probe registers two GET (and HEAD) handlers on the same path: the
// first is filtered on an Accept header containing application/json and
// answers with a JSON Response, the second answers in plain text. Plain text
// clients can still ask for JSON with ?format=json.
//
//	svc.Publish(health.LivenessResource())
//	svc.Publish(health.ReadinessResource(health.Checks{
//	    "redis": redis.Healthcheck(client),
//	}, nil, health.WithTimeout(2*time.Second)))
//
// Readiness checks run concurrently; the probe reports 503 if any fails.
package health
