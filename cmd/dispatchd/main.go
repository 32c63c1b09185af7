// Command dispatchd serves a small demo resource set with dispatch.
//
// Settings come from an optional YAML file and DISPATCH_* environment
// variables, in that order.
package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/dispatch"
	"github.com/dmitrymomot/dispatch/middlewares"
	"github.com/dmitrymomot/dispatch/pkg/cache"
	"github.com/dmitrymomot/dispatch/pkg/health"
	"github.com/dmitrymomot/dispatch/pkg/logger"
	"github.com/dmitrymomot/dispatch/pkg/redis"
)

type flags struct {
	config      string
	redisURL    string
	sentryDSN   string
	environment string
	token       string
	logLevel    string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "dispatchd",
		Short:         "Serve the dispatch demo resources",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "path to a YAML settings file")
	fs.StringVar(&f.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for the token cache and readiness check")
	fs.StringVar(&f.sentryDSN, "sentry-dsn", os.Getenv("SENTRY_DSN"), "Sentry DSN; empty logs to stdout only")
	fs.StringVar(&f.environment, "environment", "development", "environment reported to Sentry")
	fs.StringVar(&f.token, "token", os.Getenv("DISPATCH_TOKEN"), "bearer token accepted by /orders")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")

	return cmd
}

func serve(ctx context.Context, f flags) error {
	log := logger.NewWithSentry(
		logger.SentryConfig{DSN: f.sentryDSN, Environment: f.environment},
		logger.WithLevel(logger.ParseLevel(f.logLevel)),
		logger.WithExtractors(dispatch.SessionIDExtractor(), middlewares.RequestIDExtractor()),
	)

	var sources []dispatch.SettingsSource
	if f.config != "" {
		sources = append(sources, dispatch.YAMLFile(f.config))
	}
	sources = append(sources, dispatch.Env("DISPATCH"))
	settings, err := dispatch.LoadSettings(sources...)
	if err != nil {
		log.Error("failed to load settings", slog.String("error", err.Error()))
		return err
	}

	runOpts := []dispatch.RunOption{
		dispatch.WithContext(ctx),
		dispatch.ShutdownHook(logger.SentryFlush()),
	}

	checks := health.Checks{}
	tokens := cache.Cache[string](nil)
	if f.redisURL != "" {
		client, err := redis.Open(ctx, f.redisURL)
		if err != nil {
			log.Error("failed to connect to redis", slog.String("error", err.Error()))
			return err
		}
		checks["redis"] = redis.Healthcheck(client)
		tokens = cache.NewRedis[string](client, cache.JSONCodec[string]{}, cache.WithPrefix("dispatchd:"))
		runOpts = append(runOpts, dispatch.ShutdownHook(redis.Shutdown(client)))
	}

	svc := dispatch.NewService(
		dispatch.WithLogger(log),
		dispatch.WithAuthenticationHandler(middlewares.Chain(
			middlewares.CORS(),
			middlewares.RequestID(),
		)),
		dispatch.WithErrorHandler(func(s *dispatch.Session, status int, err error) {
			if status >= http.StatusInternalServerError {
				s.Logger().Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
			}
		}),
		dispatch.WithReadyHandler(func(svc *dispatch.Service) {
			log.Info("dispatchd ready", slog.String("addr", svc.Addr().String()))
		}),
	)

	resources, err := demoResources(f.token, tokens)
	if err != nil {
		return err
	}
	resources = append(resources,
		health.LivenessResource(),
		health.ReadinessResource(checks, nil, health.WithLogger(log)),
	)
	runOpts = append(runOpts, dispatch.Resources(resources...))

	return dispatch.Run(svc, settings, runOpts...)
}

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// demoResources builds the greeting, echo, clock and orders endpoints.
func demoResources(token string, tokens cache.Cache[string]) ([]*dispatch.Resource, error) {
	hello := dispatch.NewResource("/", "/hello")
	if err := hello.SetMethodHandler(http.MethodGet, func(s *dispatch.Session) error {
		name := dispatch.QueryDefault(s, "name", "world")
		return s.CloseString(http.StatusOK, "Hello, "+name+"!\n")
	}); err != nil {
		return nil, err
	}

	echo := dispatch.NewResource("/echo")
	if err := echo.SetMethodHandler(http.MethodPost, func(s *dispatch.Session) error {
		ct := s.Request().Headers.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		return s.Close(http.StatusOK, s.Request().Body, http.Header{"Content-Type": {ct}})
	}); err != nil {
		return nil, err
	}

	clock := dispatch.NewResource("/time")
	if err := clock.SetMethodHandler(http.MethodGet, middlewares.Timeout(time.Second, func(s *dispatch.Session) error {
		return s.CloseJSON(http.StatusOK, map[string]string{"now": time.Now().UTC().Format(time.RFC3339)})
	}), dispatch.MustFilter("Accept", `.*application/json.*`)); err != nil {
		return nil, err
	}
	if err := clock.SetMethodHandler(http.MethodGet, func(s *dispatch.Session) error {
		return s.CloseString(http.StatusOK, time.Now().UTC().Format(time.RFC1123)+"\n")
	}); err != nil {
		return nil, err
	}

	orders := dispatch.NewResource("/orders")
	opts := []middlewares.BearerOption{middlewares.WithBearerRealm("dispatchd")}
	if tokens != nil {
		opts = append(opts, middlewares.WithBearerCache(tokens))
	}
	orders.SetAuthenticationHandler(middlewares.BearerToken(staticToken(token), opts...))
	if err := orders.SetMethodHandler(http.MethodGet, middlewares.Recover(func(s *dispatch.Session) error {
		return s.CloseJSON(http.StatusOK, []order{
			{ID: "ord-1", Status: "shipped"},
			{ID: "ord-2", Status: "pending"},
		})
	})); err != nil {
		return nil, err
	}
	orders.SetErrorHandler(func(s *dispatch.Session, status int, err error) {
		_ = s.CloseJSON(status, map[string]string{"error": dispatch.StatusText(status)})
	})

	return []*dispatch.Resource{hello, echo, clock, orders}, nil
}

// staticToken accepts exactly one configured token. With none configured
// every token is rejected.
func staticToken(want string) middlewares.VerifyFunc {
	return func(_ context.Context, got string) (string, error) {
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return "", fmt.Errorf("unknown token: %w", middlewares.ErrInvalidToken)
		}
		return "demo", nil
	}
}
