// Package middlewares provides reusable gates and handler decorators for
// dispatch services.
//
// Gates are dispatch.AuthHandler values. They run before routing when set on
// the service and after routing when set on a resource. A gate either calls
// the continuation or closes the session. Decorators wrap a
// dispatch.HandlerFunc.
//
// # Request ID
//
// RequestID assigns an ID to each session. It reuses an incoming
// X-Request-ID or X-Correlation-ID header, otherwise it generates a UUID, and
// echoes the value in the response:
//
//	svc := dispatch.NewService(
//	    dispatch.WithAuthenticationHandler(middlewares.RequestID()),
//	)
//
// Use RequestIDExtractor with the logger to get request_id on every record
// logged with the session context:
//
//	log := logger.New(middlewares.RequestIDExtractor(), dispatch.SessionIDExtractor())
//
// # CORS
//
// CORS stages Access-Control headers on the session. A preflight request
// (OPTIONS with Access-Control-Request-Method) is answered with 204 and never
// reaches routing:
//
//	middlewares.CORS(
//	    middlewares.WithAllowOrigins("https://app.example.com"),
//	    middlewares.WithAllowCredentials(),
//	)
//
// # Bearer tokens
//
// BearerToken verifies a token with a caller-supplied function and caches the
// verdict. Pass a Redis-backed cache to share verdicts between instances:
//
//	orders.SetAuthenticationHandler(middlewares.BearerToken(verify,
//	    middlewares.WithBearerCache(cache.NewRedis[string](client, cache.JSONCodec[string]{})),
//	))
//
// # Recover and Timeout
//
// The engine already turns handler panics into 500 responses. Recover logs the
// panic where it happened and bounds the captured stack. Timeout fails a
// handler that has not finished within the deadline with a *TimeoutError,
// which closes the session with 503:
//
//	users.SetMethodHandler(http.MethodGet,
//	    middlewares.Recover(middlewares.Timeout(5*time.Second, listUsers)),
//	)
//
// # Ordering
//
// Chain combines gates into one. CORS goes first so preflights are answered
// before anything else runs, then RequestID so later gates log with the ID:
//
//	dispatch.WithAuthenticationHandler(middlewares.Chain(
//	    middlewares.CORS(),
//	    middlewares.RequestID(),
//	))
package middlewares
