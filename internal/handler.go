package internal

// HandlerFunc produces the response for a routed request.
// The handler owns the session: it must eventually close it, either before
// returning or later from another goroutine. Returning a non-nil error hands
// the session to the error hooks instead.
//
// Example:
//
//	func getUser(s *dispatch.Session) error {
//	    user, err := repo.Find(s.Context(), s.Request().Query.Get("id"))
//	    if err != nil {
//	        return dispatch.NewHTTPError(http.StatusNotFound, "no such user").Wrap(err)
//	    }
//	    return s.CloseJSON(http.StatusOK, user)
//	}
type HandlerFunc func(s *Session) error

// AuthHandler is an authentication gate. It either calls next to let the
// session proceed or closes the session itself. A gate that does neither
// leaves the session open until its connection times out.
//
// Example:
//
//	func apiKey(s *dispatch.Session, next func(*dispatch.Session)) {
//	    if s.Request().Headers.Get("X-API-Key") != key {
//	        s.Close(http.StatusUnauthorized, nil)
//	        return
//	    }
//	    next(s)
//	}
type AuthHandler func(s *Session, next func(*Session))

// ErrorHandler is notified of routing misses and handler faults.
// status is the code the engine would respond with. If the session is still
// open when the hook returns, the engine closes it with that status.
type ErrorHandler func(s *Session, status int, err error)

// ReadyHandler runs once the listener is bound, before the first accept.
type ReadyHandler func(s *Service)

// Stage is one step of the per-session pipeline.
type Stage func(s *Session, next func(*Session))
