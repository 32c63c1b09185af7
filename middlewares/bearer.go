package middlewares

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/dispatch"
	"github.com/dmitrymomot/dispatch/pkg/cache"
)

// DefaultBearerCacheTTL is how long a verified token is trusted without
// asking the verifier again.
const DefaultBearerCacheTTL = time.Minute

// subjectKey is the session value key for the verified subject.
type subjectKey struct{}

// VerifyFunc checks a bearer token and returns the subject it identifies.
// Return an error wrapping ErrInvalidToken to reject the credentials; any
// other error is treated as a verifier failure and closes the session 500.
type VerifyFunc func(ctx context.Context, token string) (subject string, err error)

// BearerConfig configures the bearer token gate.
type BearerConfig struct {
	Extractor dispatch.Extractor
	Cache     cache.Cache[string]
	TTL       time.Duration
	Realm     string
}

// BearerOption configures BearerConfig.
type BearerOption func(*BearerConfig)

// WithBearerExtractor sets a custom token extractor chain.
func WithBearerExtractor(ext dispatch.Extractor) BearerOption {
	return func(cfg *BearerConfig) {
		cfg.Extractor = ext
	}
}

// WithBearerCache stores verified subjects in c, for example a Redis backed
// cache shared across instances. Defaults to an in-memory LRU.
func WithBearerCache(c cache.Cache[string]) BearerOption {
	return func(cfg *BearerConfig) {
		if c != nil {
			cfg.Cache = c
		}
	}
}

// WithBearerTTL sets how long verified tokens stay cached.
func WithBearerTTL(d time.Duration) BearerOption {
	return func(cfg *BearerConfig) {
		if d > 0 {
			cfg.TTL = d
		}
	}
}

// WithBearerRealm sets the realm advertised in WWW-Authenticate.
func WithBearerRealm(realm string) BearerOption {
	return func(cfg *BearerConfig) {
		cfg.Realm = realm
	}
}

// BearerToken returns a gate that requires a bearer token accepted by verify.
// Verdicts are cached per token; concurrent requests with the same uncached
// token share one verify call. Missing or rejected tokens close the session
// 401 with a WWW-Authenticate challenge.
//
// Example:
//
//	orders.SetAuthenticationHandler(middlewares.BearerToken(
//	    func(ctx context.Context, token string) (string, error) {
//	        return tokens.Subject(ctx, token)
//	    },
//	    middlewares.WithBearerCache(cache.NewRedis[string](client, cache.JSONCodec[string]{})),
//	))
func BearerToken(verify VerifyFunc, opts ...BearerOption) dispatch.AuthHandler {
	cfg := &BearerConfig{
		Extractor: dispatch.NewExtractor(dispatch.FromBearerToken()),
		TTL:       DefaultBearerCacheTTL,
		Realm:     "dispatch",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory[string](cache.WithMaxEntries(10_000))
	}
	loader := cache.NewLoader(cfg.Cache)

	return func(s *dispatch.Session, next func(*dispatch.Session)) {
		token, ok := cfg.Extractor.Extract(s)
		if !ok {
			challenge(s, cfg.Realm, "")
			_ = s.CloseWithError(dispatch.NewHTTPError(http.StatusUnauthorized, "missing authentication token"))
			return
		}

		subject, err := loader.Load(s.Context(), tokenKey(token), func(ctx context.Context) (string, time.Duration, error) {
			sub, err := verify(ctx, token)
			if err != nil {
				return "", 0, err
			}
			return sub, cfg.TTL, nil
		})
		switch {
		case errors.Is(err, ErrInvalidToken):
			s.Logger().Debug("bearer token rejected", "error", err)
			challenge(s, cfg.Realm, "invalid_token")
			_ = s.CloseWithError(dispatch.NewHTTPError(http.StatusUnauthorized, "invalid token").Wrap(err))
			return
		case err != nil:
			s.Logger().Error("bearer token verification failed", "error", err)
			_ = s.CloseWithError(fmt.Errorf("verify bearer token: %w", err))
			return
		}

		s.Set(subjectKey{}, subject)
		next(s)
	}
}

// GetSubject returns the subject verified by BearerToken, or "".
func GetSubject(s *dispatch.Session) string {
	if v, ok := s.Get(subjectKey{}); ok {
		sub, _ := v.(string)
		return sub
	}
	return ""
}

// tokenKey keeps raw credentials out of shared caches.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "bearer:" + hex.EncodeToString(sum[:])
}

func challenge(s *dispatch.Session, realm, code string) {
	v := fmt.Sprintf("Bearer realm=%q", realm)
	if code != "" {
		v += fmt.Sprintf(", error=%q", code)
	}
	s.SetHeader("WWW-Authenticate", v)
}
