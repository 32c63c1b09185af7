package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the exchange of one request and one response over an accepted
// connection. The session owns the connection until it is closed.
type Session struct {
	id      string
	conn    net.Conn
	reader  *bufio.Reader
	created time.Time

	request  *Request
	resource atomic.Pointer[Resource]
	handler  HandlerFunc

	// inHandler is set while the resolved handler is executing.
	inHandler atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	values   map[any]any
	defaults http.Header
	staged   http.Header
	onClose  []func(*Session)

	closed       atomic.Bool
	status       atomic.Int32
	statusText   StatusLookup
	writeTimeout time.Duration
	logger       *slog.Logger
}

// sessionIDKey is the context key for the session ID.
type sessionIDKey struct{}

// NewSession wraps conn. ctx is the parent of the session context; it is
// cancelled when the session closes.
func NewSession(ctx context.Context, conn net.Conn, logger *slog.Logger) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.WithValue(ctx, sessionIDKey{}, id))

	s := &Session{
		id:         id,
		conn:       conn,
		created:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		values:     make(map[any]any),
		defaults:   make(http.Header),
		staged:     make(http.Header),
		statusText: StatusText,
		logger:     logger.With(slog.String("session_id", id)),
	}
	if conn != nil {
		s.reader = bufio.NewReader(conn)
		if addr := conn.RemoteAddr(); addr != nil {
			s.logger = s.logger.With(slog.String("remote_addr", addr.String()))
		}
	}
	return s
}

// SessionIDFromContext returns the session ID stored in ctx.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Request returns the parsed request, or nil before the session is loaded.
func (s *Session) Request() *Request { return s.request }

// Resource returns the resource the request was routed to, or nil before routing.
func (s *Session) Resource() *Resource { return s.resource.Load() }

// Conn returns the underlying connection.
func (s *Session) Conn() net.Conn { return s.conn }

// CreatedAt returns the time the connection was accepted.
func (s *Session) CreatedAt() time.Time { return s.created }

// IsOpen reports whether the session can still respond.
func (s *Session) IsOpen() bool { return !s.closed.Load() }

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// Status returns the status the session was closed with, or 0 while open.
func (s *Session) Status() int { return int(s.status.Load()) }

// Logger returns a logger carrying the session ID.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Context returns the session context. It is cancelled when the session closes.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Set stores a request-scoped value. The value is also visible through Context.
func (s *Session) Set(key, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.ctx = context.WithValue(s.ctx, key, value)
	s.mu.Unlock()
}

// Get returns a value stored with Set.
func (s *Session) Get(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetHeader stages a response header. Headers passed to Close win over staged ones.
func (s *Session) SetHeader(name, value string) {
	s.mu.Lock()
	s.staged.Set(name, value)
	s.mu.Unlock()
}

// AddHeader appends a staged response header value.
func (s *Session) AddHeader(name, value string) {
	s.mu.Lock()
	s.staged.Add(name, value)
	s.mu.Unlock()
}

// OnClose registers fn to run after the session closes.
func (s *Session) OnClose(fn func(*Session)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Close writes the response and closes the connection.
// Header precedence is defaults, then staged headers, then headers in call
// order. Content-Length is added when absent. Only the first call has any
// effect; later calls return nil.
func (s *Session) Close(status int, body []byte, headers ...http.Header) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.status.Store(int32(status))

	s.mu.Lock()
	h := s.defaults.Clone()
	for k, v := range s.staged {
		h[k] = slices.Clone(v)
	}
	s.mu.Unlock()
	for _, extra := range headers {
		for k, v := range extra {
			h[http.CanonicalHeaderKey(k)] = slices.Clone(v)
		}
	}
	if h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}

	err := s.write(status, h, body)
	if err != nil {
		s.logger.Warn("failed to write response", slog.Int("status", status), slog.Any("error", err))
	}
	s.finish()
	return err
}

// CloseString is Close with a string body.
func (s *Session) CloseString(status int, body string, headers ...http.Header) error {
	return s.Close(status, []byte(body), headers...)
}

// CloseJSON encodes v as the response body.
func (s *Session) CloseJSON(status int, v any, headers ...http.Header) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	h := http.Header{"Content-Type": {"application/json"}}
	return s.Close(status, body, append([]http.Header{h}, headers...)...)
}

// CloseWithError responds with the status carried by err and its message.
// Errors without a status respond 500 with the reason phrase so internal
// details do not leak to clients.
func (s *Session) CloseWithError(err error) error {
	status := StatusFromError(err)
	msg := s.statusText(status)
	if he := AsHTTPError(err); he != nil && he.Message != "" {
		msg = he.Message
	}
	return s.CloseString(status, msg, http.Header{"Content-Type": {"text/plain; charset=utf-8"}})
}

// Abort closes the connection without writing a response.
func (s *Session) Abort() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.finish()
}

func (s *Session) write(status int, h http.Header, body []byte) error {
	if s.conn == nil {
		return net.ErrClosed
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	proto := "HTTP/1.1"
	if s.request != nil && s.request.Protocol != "" {
		proto = s.request.Protocol
	}

	w := bufio.NewWriter(s.conn)
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", proto, status, s.statusText(status)); err != nil {
		return err
	}
	if err := h.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if s.request == nil || s.request.Method != http.MethodHead {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (s *Session) finish() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("failed to close connection", slog.Any("error", err))
		}
	}
	s.mu.Lock()
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	s.cancel()
	for _, fn := range hooks {
		fn(s)
	}
}

func (s *Session) setResource(r *Resource) bool {
	return s.resource.CompareAndSwap(nil, r)
}

func (s *Session) setDefaultHeaders(h map[string]string) {
	s.mu.Lock()
	for k, v := range h {
		s.defaults.Set(k, v)
	}
	s.mu.Unlock()
}

func (s *Session) setStatusLookup(fn StatusLookup) {
	if fn != nil {
		s.statusText = fn
	}
}
