package middlewares

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatch"
)

// DefaultCORSMaxAge is the default preflight cache duration.
const DefaultCORSMaxAge = 12 * time.Hour

// CORSConfig configures the CORS gate.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. "*" allows any origin.
	AllowOrigins []string

	// AllowOriginFunc replaces AllowOrigins when set.
	AllowOriginFunc func(origin string) bool

	// AllowMethods is advertised on preflight. Empty derives it from the
	// routed resource, or from every supported verb before routing.
	AllowMethods []string

	AllowHeaders  []string
	ExposeHeaders []string

	// AllowCredentials echoes the request origin instead of "*".
	AllowCredentials bool

	// MaxAge is how long clients may cache a preflight answer.
	MaxAge time.Duration
}

// CORSOption configures CORSConfig.
type CORSOption func(*CORSConfig)

// WithAllowOrigins sets the allowed origins.
func WithAllowOrigins(origins ...string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowOrigins = origins }
}

// WithAllowOriginFunc sets a dynamic origin validator.
//
// Example:
//
//	middlewares.CORS(middlewares.WithAllowOriginFunc(func(origin string) bool {
//	    return strings.HasSuffix(origin, ".example.com")
//	}))
func WithAllowOriginFunc(fn func(origin string) bool) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowOriginFunc = fn }
}

// WithAllowMethods fixes the methods advertised on preflight.
func WithAllowMethods(methods ...string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowMethods = methods }
}

// WithAllowHeaders sets the allowed request headers.
func WithAllowHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowHeaders = headers }
}

// WithExposeHeaders sets the response headers scripts may read.
func WithExposeHeaders(headers ...string) CORSOption {
	return func(cfg *CORSConfig) { cfg.ExposeHeaders = headers }
}

// WithAllowCredentials enables credentialed requests.
func WithAllowCredentials() CORSOption {
	return func(cfg *CORSConfig) { cfg.AllowCredentials = true }
}

// WithMaxAge sets the preflight cache duration.
func WithMaxAge(d time.Duration) CORSOption {
	return func(cfg *CORSConfig) { cfg.MaxAge = d }
}

// CORS returns a gate that stages Cross-Origin Resource Sharing headers for
// allowed origins. A preflight (OPTIONS carrying Access-Control-Request-Method)
// is closed with 204 without continuing. Other origins continue untouched.
//
// Set as a resource gate, preflights are answered for every routed path even
// without an OPTIONS handler, and advertise the resource's own methods.
func CORS(opts ...CORSOption) dispatch.AuthHandler {
	cfg := &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       DefaultCORSMaxAge,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fixedMethods := strings.Join(cfg.AllowMethods, ", ")
	anyMethod := strings.Join(dispatch.SupportedMethods(), ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))
	wildcard := slices.Contains(cfg.AllowOrigins, "*")

	allowed := func(origin string) bool {
		switch {
		case cfg.AllowOriginFunc != nil:
			return cfg.AllowOriginFunc(origin)
		case wildcard:
			return true
		default:
			return slices.Contains(cfg.AllowOrigins, origin)
		}
	}

	methodsFor := func(s *dispatch.Session) string {
		if fixedMethods != "" {
			return fixedMethods
		}
		if r := s.Resource(); r != nil {
			return strings.Join(r.Methods(), ", ")
		}
		return anyMethod
	}

	return func(s *dispatch.Session, next func(*dispatch.Session)) {
		req := s.Request()
		origin := req.Headers.Get("Origin")
		if origin == "" || !allowed(origin) {
			next(s)
			return
		}

		s.AddHeader("Vary", "Origin")
		if cfg.AllowCredentials || !wildcard {
			s.SetHeader("Access-Control-Allow-Origin", origin)
		} else {
			s.SetHeader("Access-Control-Allow-Origin", "*")
		}
		if cfg.AllowCredentials {
			s.SetHeader("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			s.SetHeader("Access-Control-Expose-Headers", exposeHeaders)
		}

		if req.Method != http.MethodOptions || req.Headers.Get("Access-Control-Request-Method") == "" {
			next(s)
			return
		}

		s.AddHeader("Vary", "Access-Control-Request-Method")
		s.AddHeader("Vary", "Access-Control-Request-Headers")
		s.SetHeader("Access-Control-Allow-Methods", methodsFor(s))
		if allowHeaders != "" {
			s.SetHeader("Access-Control-Allow-Headers", allowHeaders)
		}
		if cfg.MaxAge > 0 {
			s.SetHeader("Access-Control-Max-Age", maxAge)
		}
		_ = s.Close(http.StatusNoContent, nil)
	}
}
