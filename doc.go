// Package dispatch is an embeddable HTTP/1.x resource server.
//
// Applications describe endpoints as Resources: a set of paths plus handlers
// keyed by HTTP method. A Service accepts connections, reads one request per
// connection and routes it through a fixed pipeline:
//
//	load request → service gate → route lookup → resource gate → method/filter resolution → handler
//
// An unknown path closes the session with 404; a known path without a
// matching handler closes it with 405.
//
// # Resources
//
//	users := dispatch.NewResource("/users")
//	users.SetMethodHandler(http.MethodGet, listUsersJSON, dispatch.MustFilter("Accept", ".*json.*"))
//	users.SetMethodHandler(http.MethodGet, listUsersText)
//
// Handlers for the same method are tried in registration order. A handler is
// eligible when every filter's pattern fully matches every value the request
// sends for that header; a header the request does not send passes.
//
// # Sessions
//
// A handler owns its Session and must close it, possibly later from another
// goroutine:
//
//	func listUsersText(s *dispatch.Session) error {
//	    return s.CloseString(http.StatusOK, "alice\nbob\n")
//	}
//
// Close is idempotent. Returning an error instead hands the session to the
// error hooks, which may close it with a status of their choosing.
//
// # Gates
//
// Authentication handlers receive the session and a continuation. They call
// the continuation to proceed or close the session to stop:
//
//	svc := dispatch.NewService(dispatch.WithAuthenticationHandler(
//	    func(s *dispatch.Session, next func(*dispatch.Session)) {
//	        if s.Request().Headers.Get("X-API-Key") != key {
//	            s.Close(http.StatusUnauthorized, nil)
//	            return
//	        }
//	        next(s)
//	    },
//	))
//
// # Lifecycle
//
// Start blocks until Stop is called or its context ends. Run wraps Start with
// signal handling and shutdown hooks:
//
//	settings, err := dispatch.LoadSettings(dispatch.YAMLFile("dispatch.yaml"), dispatch.Env("DISPATCH"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = dispatch.Run(svc, settings, dispatch.Resources(users))
package dispatch
