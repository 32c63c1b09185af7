package middlewares_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatch"
)

var client = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

// serve runs svc on a loopback port with resources published and returns
// the base URL.
func serve(t *testing.T, svc *dispatch.Service, resources ...*dispatch.Resource) string {
	t.Helper()

	ready := make(chan string, 1)
	require.NoError(t, svc.SetReadyHandler(func(s *dispatch.Service) {
		ready <- s.Addr().String()
	}))
	for _, r := range resources {
		require.NoError(t, svc.Publish(r))
	}

	settings := dispatch.DefaultSettings()
	settings.BindAddress = "127.0.0.1"
	settings.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx, settings) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case addr := <-ready:
		return "http://" + addr
	case err := <-done:
		t.Fatalf("service exited: %v", err)
	}
	return ""
}

// resource publishes h for GET and OPTIONS at path.
func resource(t *testing.T, path string, h dispatch.HandlerFunc) *dispatch.Resource {
	t.Helper()
	r := dispatch.NewResource(path)
	require.NoError(t, r.SetMethodHandler(http.MethodGet, h))
	require.NoError(t, r.SetMethodHandler(http.MethodOptions, h))
	return r
}

func do(t *testing.T, method, url string, headers ...string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func text(body string) dispatch.HandlerFunc {
	return func(s *dispatch.Session) error {
		return s.CloseString(http.StatusOK, body)
	}
}
