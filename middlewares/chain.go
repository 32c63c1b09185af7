package middlewares

import "github.com/dmitrymomot/dispatch"

// Chain combines gates into one. Each gate runs when the previous one calls
// next; a gate that closes the session ends the chain.
//
// Example:
//
//	svc := dispatch.NewService(dispatch.WithAuthenticationHandler(
//	    middlewares.Chain(middlewares.CORS(), middlewares.RequestID()),
//	))
func Chain(gates ...dispatch.AuthHandler) dispatch.AuthHandler {
	return func(s *dispatch.Session, next func(*dispatch.Session)) {
		chainFrom(gates, 0, s, next)
	}
}

func chainFrom(gates []dispatch.AuthHandler, i int, s *dispatch.Session, next func(*dispatch.Session)) {
	for i < len(gates) && gates[i] == nil {
		i++
	}
	if i == len(gates) {
		next(s)
		return
	}
	if s.IsClosed() {
		return
	}
	gates[i](s, func(s *dispatch.Session) {
		chainFrom(gates, i+1, s, next)
	})
}
