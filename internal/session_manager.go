package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatch/pkg/logger"
)

// SessionManager creates sessions for accepted connections and reads their
// requests.
type SessionManager interface {
	// Create wraps an accepted connection in a new open session.
	Create(ctx context.Context, conn net.Conn) (*Session, error)

	// Load reads and parses the request into the session.
	Load(ctx context.Context, s *Session) error
}

// ConnSessionManager is the default SessionManager. It applies socket
// timeouts, parses requests with a Parser and keeps track of open sessions.
type ConnSessionManager struct {
	parser         Parser
	timeout        time.Duration
	defaultHeaders map[string]string
	statusText     StatusLookup
	logger         *slog.Logger

	mu   sync.Mutex
	open map[string]*Session
}

// SessionManagerOption configures a ConnSessionManager.
type SessionManagerOption func(*ConnSessionManager)

// WithSessionParser sets the request parser. Defaults to HTTPParser.
func WithSessionParser(p Parser) SessionManagerOption {
	return func(m *ConnSessionManager) {
		if p != nil {
			m.parser = p
		}
	}
}

// WithSessionTimeout sets the read and write timeout applied to each connection.
// Zero disables it.
func WithSessionTimeout(d time.Duration) SessionManagerOption {
	return func(m *ConnSessionManager) {
		if d >= 0 {
			m.timeout = d
		}
	}
}

// WithSessionDefaultHeaders sets headers written on every response unless overridden.
func WithSessionDefaultHeaders(h map[string]string) SessionManagerOption {
	return func(m *ConnSessionManager) {
		m.defaultHeaders = h
	}
}

// WithSessionStatusLookup sets the reason phrase lookup used in status lines.
func WithSessionStatusLookup(fn StatusLookup) SessionManagerOption {
	return func(m *ConnSessionManager) {
		if fn != nil {
			m.statusText = fn
		}
	}
}

// WithSessionLogger sets the logger sessions derive theirs from.
func WithSessionLogger(l *slog.Logger) SessionManagerOption {
	return func(m *ConnSessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewConnSessionManager creates a session manager.
func NewConnSessionManager(opts ...SessionManagerOption) *ConnSessionManager {
	m := &ConnSessionManager{
		parser:     HTTPParser{},
		statusText: StatusText,
		logger:     logger.NewNope(),
		open:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create implements SessionManager.
func (m *ConnSessionManager) Create(ctx context.Context, conn net.Conn) (*Session, error) {
	if conn == nil {
		return nil, net.ErrClosed
	}
	if m.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(m.timeout)); err != nil {
			return nil, err
		}
	}

	s := NewSession(ctx, conn, m.logger)
	s.setDefaultHeaders(m.defaultHeaders)
	s.setStatusLookup(m.statusText)
	s.writeTimeout = m.timeout

	m.mu.Lock()
	m.open[s.id] = s
	m.mu.Unlock()
	s.OnClose(m.forget)

	return s, nil
}

// Load implements SessionManager.
func (m *ConnSessionManager) Load(ctx context.Context, s *Session) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req, err := m.parser.Parse(s.reader)
	if err != nil {
		return err
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		req.RemoteAddr = addr.String()
	}
	s.request = req

	// A running handler is not bounded by the timeout. The sweeper only
	// closes sessions no handler is working on.
	if m.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}

// Sessions returns a snapshot of the open sessions, oldest first.
func (m *ConnSessionManager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.open))
	for _, s := range m.open {
		out = append(out, s)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b *Session) int {
		return a.created.Compare(b.created)
	})
	return out
}

// Len returns the number of open sessions.
func (m *ConnSessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *ConnSessionManager) forget(s *Session) {
	m.mu.Lock()
	delete(m.open, s.id)
	m.mu.Unlock()
}
