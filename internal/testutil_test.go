package internal_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatch/internal"
)

// pipeSession loads raw through a ConnSessionManager over net.Pipe.
// The returned channel yields everything the session wrote once it closes.
func pipeSession(t *testing.T, raw string, opts ...internal.SessionManagerOption) (*internal.Session, <-chan []byte) {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	out := make(chan []byte, 1)
	go func() {
		if raw != "" {
			if _, err := io.WriteString(client, raw); err != nil {
				out <- nil
				return
			}
		}
		b, _ := io.ReadAll(client)
		out <- b
	}()

	sm := internal.NewConnSessionManager(opts...)
	s, err := sm.Create(context.Background(), server)
	require.NoError(t, err)
	if raw != "" {
		require.NoError(t, sm.Load(context.Background(), s))
	}
	return s, out
}

// readOutput waits for the bytes a pipe session wrote.
func readOutput(t *testing.T, out <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-out:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session output")
		return nil
	}
}

// parseResponse parses raw response bytes written for a request of method.
func parseResponse(t *testing.T, raw []byte, method string) (*http.Response, string) {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), &http.Request{Method: method})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// serve starts svc on a loopback port and returns its address.
// The service is stopped when the test ends.
func serve(t *testing.T, svc *internal.Service, settings internal.Settings) string {
	t.Helper()

	ready := make(chan string, 1)
	require.NoError(t, svc.SetReadyHandler(func(s *internal.Service) {
		ready <- s.Addr().String()
	}))

	settings.BindAddress = "127.0.0.1"
	settings.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx, settings) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})

	select {
	case addr := <-ready:
		return addr
	case err := <-done:
		t.Fatalf("service exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not become ready")
	}
	return ""
}

// roundTrip sends req over a fresh connection and reads the response.
func roundTrip(t *testing.T, addr string, req *http.Request) (*http.Response, string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, req.Write(conn))
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// get is roundTrip for a GET with optional header pairs.
func get(t *testing.T, addr, target string, headers ...string) (*http.Response, string) {
	t.Helper()
	return do(t, addr, http.MethodGet, target, "", headers...)
}

func do(t *testing.T, addr, method, target, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://"+addr+target, r)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}
	return roundTrip(t, addr, req)
}

// sendRaw writes raw bytes and returns whatever the server answers.
func sendRaw(t *testing.T, addr, raw string) []byte {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	if tc, ok := conn.(*net.TCPConn); ok {
		require.NoError(t, tc.CloseWrite())
	}
	out, _ := io.ReadAll(conn)
	return out
}

// ok is a handler answering 200 with body.
func ok(body string) internal.HandlerFunc {
	return func(s *internal.Session) error {
		return s.CloseString(http.StatusOK, body)
	}
}
