package internal_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dmitrymomot/dispatch/internal"
)

func TestServiceDispatch(t *testing.T) {
	t.Parallel()

	t.Run("routes to the published handler", func(t *testing.T) {
		t.Parallel()

		var invoked atomic.Bool
		res := internal.NewResource("/resources/1")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			invoked.Store(true)
			return s.CloseString(http.StatusOK, "Hello, World!")
		}))

		svc := internal.NewService()
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/resources/1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "Hello, World!", body)
		require.True(t, invoked.Load())
	})

	t.Run("unknown path closes 404", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		require.NoError(t, svc.Publish(internal.NewResource("/resources/1")))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/missing")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "Not Found", body)
	})

	t.Run("unregistered method closes 405 with Allow", func(t *testing.T) {
		t.Parallel()

		res := internal.NewResource("/resources/1")
		require.NoError(t, res.SetMethodHandler(http.MethodPost, ok("created")))

		svc := internal.NewService()
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/resources/1")
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, "POST", resp.Header.Get("Allow"))
	})

	t.Run("filters pick the matching handler", func(t *testing.T) {
		t.Parallel()

		res := internal.NewResource("/resources/1")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("json"),
			internal.MustFilter("Accept", "application/json")))
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("fallback")))

		svc := internal.NewService()
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		_, body := get(t, addr, "/resources/1", "Accept", "text/plain")
		require.Equal(t, "fallback", body)

		_, body = get(t, addr, "/resources/1", "Accept", "application/json")
		require.Equal(t, "json", body)
	})

	t.Run("root prefixes published paths", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/users")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("users")))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.Root = "/api"
		addr := serve(t, svc, settings)

		_, body := get(t, addr, "/api/users")
		require.Equal(t, "users", body)

		resp, _ := get(t, addr, "/users")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("case insensitive paths", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/Users")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("users")))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.CaseInsensitivePaths = true
		addr := serve(t, svc, settings)

		_, body := get(t, addr, "/USERS")
		require.Equal(t, "users", body)
	})

	t.Run("default headers are written unless overridden", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/h")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			return s.CloseString(http.StatusOK, "", http.Header{"X-Override": {"handler"}})
		}))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.DefaultHeaders = map[string]string{"Server": "dispatch", "X-Override": "default"}
		addr := serve(t, svc, settings)

		resp, _ := get(t, addr, "/h")
		require.Equal(t, "dispatch", resp.Header.Get("Server"))
		require.Equal(t, "handler", resp.Header.Get("X-Override"))
	})

	t.Run("request body reaches the handler", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/echo")
		require.NoError(t, res.SetMethodHandler(http.MethodPost, func(s *internal.Session) error {
			return s.Close(http.StatusOK, s.Request().Body)
		}))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		_, body := do(t, addr, http.MethodPost, "/echo", "ping")
		require.Equal(t, "ping", body)
	})

	t.Run("handler may close from another goroutine", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/async")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			go func() {
				time.Sleep(10 * time.Millisecond)
				_ = s.CloseString(http.StatusAccepted, "later")
			}()
			return nil
		}))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/async")
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Equal(t, "later", body)
	})
}

func TestServiceAuthentication(t *testing.T) {
	t.Parallel()

	t.Run("service gate rejection skips resource gate and handler", func(t *testing.T) {
		t.Parallel()

		var resourceGate, handler atomic.Bool
		res := internal.NewResource("/secure")
		res.SetAuthenticationHandler(func(s *internal.Session, next func(*internal.Session)) {
			resourceGate.Store(true)
			next(s)
		})
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			handler.Store(true)
			return s.CloseString(http.StatusOK, "secret")
		}))

		svc := internal.NewService(internal.WithAuthenticationHandler(func(s *internal.Session, next func(*internal.Session)) {
			if s.Request().Headers.Get("Authorization") != "let-me-in" {
				_ = s.CloseString(http.StatusUnauthorized, "denied")
				return
			}
			next(s)
		}))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/secure")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "denied", body)
		require.False(t, resourceGate.Load())
		require.False(t, handler.Load())

		resp, body = get(t, addr, "/secure", "Authorization", "let-me-in")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "secret", body)
		require.True(t, resourceGate.Load())
	})

	t.Run("gates run service first then resource", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var order []string
		record := func(name string) internal.AuthHandler {
			return func(s *internal.Session, next func(*internal.Session)) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next(s)
			}
		}

		res := internal.NewResource("/r")
		res.SetAuthenticationHandler(record("resource"))
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("ok")))

		svc := internal.NewService(internal.WithAuthenticationHandler(record("service")))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		get(t, addr, "/r")
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, []string{"service", "resource"}, order)
	})

	t.Run("gate may continue from another goroutine", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService(internal.WithAuthenticationHandler(func(s *internal.Session, next func(*internal.Session)) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				next(s)
				next(s)
			}()
		}))
		res := internal.NewResource("/r")
		var calls atomic.Int32
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			calls.Add(1)
			return s.CloseString(http.StatusOK, "ok")
		}))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/r")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, int32(1), calls.Load())
	})
}

func TestServiceErrorHooks(t *testing.T) {
	t.Parallel()

	t.Run("service hook sees 404 and may answer", func(t *testing.T) {
		t.Parallel()

		var gotStatus atomic.Int32
		var gotErr atomic.Value
		svc := internal.NewService(internal.WithErrorHandler(func(s *internal.Session, status int, err error) {
			gotStatus.Store(int32(status))
			gotErr.Store(err)
			_ = s.CloseString(status, "custom not found")
		}))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/nope")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "custom not found", body)
		require.Equal(t, int32(http.StatusNotFound), gotStatus.Load())
		require.ErrorIs(t, gotErr.Load().(error), internal.ErrNotFound)
	})

	t.Run("handler error with status", func(t *testing.T) {
		t.Parallel()

		res := internal.NewResource("/teapot")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(*internal.Session) error {
			return internal.NewHTTPError(http.StatusTeapot, "short and stout")
		}))
		svc := internal.NewService()
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/teapot")
		require.Equal(t, http.StatusTeapot, resp.StatusCode)
		require.Equal(t, "short and stout", body)
	})

	t.Run("plain handler error closes 500 without leaking", func(t *testing.T) {
		t.Parallel()

		res := internal.NewResource("/fail")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(*internal.Session) error {
			return errors.New("database password is hunter2")
		}))
		svc := internal.NewService()
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/fail")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, "Internal Server Error", body)
	})

	t.Run("resource hook replaces service hook", func(t *testing.T) {
		t.Parallel()

		var serviceHook atomic.Bool
		svc := internal.NewService(internal.WithErrorHandler(func(*internal.Session, int, error) {
			serviceHook.Store(true)
		}))

		res := internal.NewResource("/r")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(*internal.Session) error {
			return errors.New("boom")
		}))
		res.SetErrorHandler(func(s *internal.Session, status int, err error) {
			_ = s.CloseString(http.StatusServiceUnavailable, "resource hook")
		})
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/r")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, "resource hook", body)
		require.False(t, serviceHook.Load())
	})

	t.Run("hook that leaves the session open gets a default close", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService(internal.WithErrorHandler(func(*internal.Session, int, error) {}))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/missing")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("panicking hook closes 500", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService(internal.WithErrorHandler(func(*internal.Session, int, error) {
			panic("hook exploded")
		}))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/missing")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("panicking handler does not stop the accept loop", func(t *testing.T) {
		t.Parallel()

		res := internal.NewResource("/panic")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(*internal.Session) error {
			panic("handler exploded")
		}))
		healthy := internal.NewResource("/ok")
		require.NoError(t, healthy.SetMethodHandler(http.MethodGet, ok("fine")))

		var hookErr atomic.Value
		svc := internal.NewService(internal.WithErrorHandler(func(_ *internal.Session, _ int, err error) {
			hookErr.Store(err)
		}))
		require.NoError(t, svc.Publish(res))
		require.NoError(t, svc.Publish(healthy))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/panic")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var pe *internal.PanicError
		require.ErrorAs(t, hookErr.Load().(error), &pe)
		require.Equal(t, "handler exploded", pe.Value)

		_, body := get(t, addr, "/ok")
		require.Equal(t, "fine", body)
	})

	t.Run("panicking gate closes 500", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService(internal.WithAuthenticationHandler(func(*internal.Session, func(*internal.Session)) {
			panic("gate exploded")
		}))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/anything")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("custom status lookup", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService(internal.WithStatusLookup(func(code int) string {
			if code == http.StatusNotFound {
				return "Nothing Here"
			}
			return internal.StatusText(code)
		}))
		addr := serve(t, svc, internal.DefaultSettings())

		resp, body := get(t, addr, "/missing")
		require.Equal(t, "404 Nothing Here", resp.Status)
		require.Equal(t, "Nothing Here", body)
	})
}

func TestServiceTransportFailures(t *testing.T) {
	t.Parallel()

	t.Run("malformed request closes 400", func(t *testing.T) {
		t.Parallel()

		var hookCalled atomic.Bool
		svc := internal.NewService(internal.WithErrorHandler(func(*internal.Session, int, error) {
			hookCalled.Store(true)
		}))
		addr := serve(t, svc, internal.DefaultSettings())

		out := sendRaw(t, addr, "THIS IS NOT HTTP\r\n\r\n")
		resp, _ := parseResponse(t, out, http.MethodGet)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.False(t, hookCalled.Load())
	})

	t.Run("oversized body closes 413", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/upload")
		require.NoError(t, res.SetMethodHandler(http.MethodPost, ok("stored")))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.MaxBodyBytes = 4
		addr := serve(t, svc, settings)

		resp, _ := do(t, addr, http.MethodPost, "/upload", "way too large")
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("client hanging up does not stop the service", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/ok")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("fine")))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		out := sendRaw(t, addr, "GET /ok HTTP/1.1\r\nHost: x\r\n")
		require.Empty(t, out)

		_, body := get(t, addr, "/ok")
		require.Equal(t, "fine", body)
	})

	t.Run("request methods are case sensitive", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/ok")
		require.NoError(t, res.SetMethodHandler("get", ok("fine")))
		require.NoError(t, svc.Publish(res))
		addr := serve(t, svc, internal.DefaultSettings())

		out := sendRaw(t, addr, "get /ok HTTP/1.1\r\nHost: x\r\n\r\n")
		resp, _ := parseResponse(t, out, http.MethodGet)
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		require.Equal(t, "GET", resp.Header.Get("Allow"))

		_, body := get(t, addr, "/ok")
		require.Equal(t, "fine", body)
	})
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("second start fails while running", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		serve(t, svc, internal.DefaultSettings())

		require.True(t, svc.IsRunning())
		err := svc.Start(context.Background(), internal.DefaultSettings())
		require.ErrorIs(t, err, internal.ErrServiceRunning)
	})

	t.Run("setters fail while running", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		serve(t, svc, internal.DefaultSettings())

		require.ErrorIs(t, svc.SetAuthenticationHandler(nil), internal.ErrServiceRunning)
		require.ErrorIs(t, svc.SetErrorHandler(nil), internal.ErrServiceRunning)
		require.ErrorIs(t, svc.SetReadyHandler(nil), internal.ErrServiceRunning)
		require.ErrorIs(t, svc.SetLogger(nil), internal.ErrServiceRunning)
	})

	t.Run("stop returns to idle and allows restart", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/ok")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("fine")))
		require.NoError(t, svc.Publish(res))

		ready := make(chan string, 1)
		require.NoError(t, svc.SetReadyHandler(func(s *internal.Service) { ready <- s.Addr().String() }))

		settings := internal.DefaultSettings()
		settings.BindAddress = "127.0.0.1"
		settings.Port = 0

		for range 2 {
			done := make(chan error, 1)
			go func() { done <- svc.Start(context.Background(), settings) }()

			addr := <-ready
			_, body := get(t, addr, "/ok")
			require.Equal(t, "fine", body)

			require.NoError(t, svc.Stop())
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("Start did not return after Stop")
			}
			require.Equal(t, internal.StateIdle, svc.State())
			require.Nil(t, svc.Addr())
		}

		require.ErrorIs(t, svc.Stop(), internal.ErrServiceNotRunning)
	})

	t.Run("invalid settings fail start", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		settings := internal.DefaultSettings()
		settings.Port = -1
		require.Error(t, svc.Start(context.Background(), settings))
		require.Equal(t, internal.StateIdle, svc.State())
	})

	t.Run("publish while running is visible", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		addr := serve(t, svc, internal.DefaultSettings())

		resp, _ := get(t, addr, "/late")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		res := internal.NewResource("/late")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("here")))
		require.NoError(t, svc.Publish(res))

		_, body := get(t, addr, "/late")
		require.Equal(t, "here", body)

		svc.Suppress(res)
		resp, _ = get(t, addr, "/late")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("max connections admits requests in turn", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/ok")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("fine")))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.MaxConnections = 1
		addr := serve(t, svc, settings)

		for range 3 {
			_, body := get(t, addr, "/ok")
			require.Equal(t, "fine", body)
		}
	})

	t.Run("sweeper closes stalled sessions with 408", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/stall")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(*internal.Session) error {
			return nil
		}))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.ConnectionTimeout = 100 * time.Millisecond
		settings.SweepSchedule = "@every 1s"
		addr := serve(t, svc, settings)

		resp, _ := get(t, addr, "/stall")
		require.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	})

	t.Run("sweeper leaves running handlers alone", func(t *testing.T) {
		t.Parallel()

		svc := internal.NewService()
		res := internal.NewResource("/slow")
		require.NoError(t, res.SetMethodHandler(http.MethodGet, func(s *internal.Session) error {
			time.Sleep(1500 * time.Millisecond)
			return s.CloseString(http.StatusOK, "done")
		}))
		require.NoError(t, svc.Publish(res))

		settings := internal.DefaultSettings()
		settings.ConnectionTimeout = 100 * time.Millisecond
		settings.SweepSchedule = "@every 1s"
		addr := serve(t, svc, settings)

		resp, body := get(t, addr, "/slow")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "done", body)
	})
}

func TestServiceTracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	res := internal.NewResource("/traced")
	require.NoError(t, res.SetMethodHandler(http.MethodGet, ok("ok")))

	svc := internal.NewService(internal.WithTracerProvider(tp))
	require.NoError(t, svc.Publish(res))
	addr := serve(t, svc, internal.DefaultSettings())

	get(t, addr, "/traced")

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	span := recorder.Ended()[0]
	require.Equal(t, "dispatch.session", span.Name())

	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "GET", attrs["http.method"])
	require.Equal(t, "/traced", attrs["http.route"])
	require.Equal(t, "200", attrs["http.status_code"])
	require.True(t, strings.HasPrefix(attrs["net.peer.addr"], "127.0.0.1:"))
}
