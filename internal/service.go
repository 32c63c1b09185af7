package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/dispatch/pkg/logger"
)

// Service states.
const (
	StateIdle int32 = iota
	StateRunning
	StateStopping
)

// Accept retry backoff bounds, as used by net/http.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ListenFunc opens the service listener.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

// Service owns the listener, the route table and the per-connection pipeline.
type Service struct {
	routes *RouteTable
	state  atomic.Int32

	mu             sync.Mutex
	authHandler    AuthHandler
	errorHandler   ErrorHandler
	readyHandler   ReadyHandler
	sessions       SessionManager
	parser         Parser
	statusText     StatusLookup
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	listen         ListenFunc

	// Set while running.
	cancel   context.CancelFunc
	listener net.Listener
	settings Settings
}

// NewService creates an idle service.
//
// Example:
//
//	svc := dispatch.NewService(
//	    dispatch.WithLogger(logger.New()),
//	    dispatch.WithErrorHandler(onError),
//	)
//	if err := svc.Publish(users); err != nil {
//	    return err
//	}
//	return svc.Start(ctx, settings)
func NewService(opts ...Option) *Service {
	s := &Service{
		statusText: StatusText,
		logger:     logger.NewNope(),
		listen: func(ctx context.Context, network, address string) (net.Listener, error) {
			var lc net.ListenConfig
			return lc.Listen(ctx, network, address)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes = NewRouteTable(s.logger)
	return s
}

// Publish routes every path of r to r. See RouteTable.Publish.
func (s *Service) Publish(r *Resource) error {
	return s.routes.Publish(r)
}

// Suppress withdraws r's routes. See RouteTable.Suppress.
func (s *Service) Suppress(r *Resource) {
	s.routes.Suppress(r)
}

// Routes returns the routed paths, sorted.
func (s *Service) Routes() []string {
	return s.routes.Paths()
}

// SetAuthenticationHandler sets the gate every request passes before routing.
func (s *Service) SetAuthenticationHandler(h AuthHandler) error {
	return s.configure(func() { s.authHandler = h })
}

// SetErrorHandler sets the hook for routing misses and handler faults.
func (s *Service) SetErrorHandler(h ErrorHandler) error {
	return s.configure(func() { s.errorHandler = h })
}

// SetReadyHandler sets the callback run once the listener is bound.
func (s *Service) SetReadyHandler(h ReadyHandler) error {
	return s.configure(func() { s.readyHandler = h })
}

// SetLogger sets the service logger. Nil disables logging.
func (s *Service) SetLogger(l *slog.Logger) error {
	if l == nil {
		l = logger.NewNope()
	}
	return s.configure(func() {
		s.logger = l
		s.routes.SetLogger(l)
	})
}

func (s *Service) configure(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Load() != StateIdle {
		return ErrServiceRunning
	}
	fn()
	return nil
}

// State returns StateIdle, StateRunning or StateStopping.
func (s *Service) State() int32 {
	return s.state.Load()
}

// IsRunning reports whether the service is accepting connections.
func (s *Service) IsRunning() bool {
	return s.state.Load() == StateRunning
}

// Addr returns the bound listener address, or nil when not running.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Settings returns the settings the running service was started with.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Start binds the listener and serves connections until Stop is called or
// ctx is cancelled. It blocks until the accept loop has unwound. Sessions
// already handed to handlers keep running after Start returns.
func (s *Service) Start(ctx context.Context, settings Settings) error {
	// The state and the cancel func change together under s.mu so a Stop
	// that sees StateRunning always has something to cancel.
	s.mu.Lock()
	if !s.state.CompareAndSwap(StateIdle, StateRunning) {
		s.mu.Unlock()
		return ErrServiceRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.settings = settings
	logger := s.logger
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.listener = nil
		s.state.Store(StateIdle)
		s.mu.Unlock()
	}()

	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.routes.Configure(settings.Root, settings.CaseInsensitivePaths); err != nil {
		return err
	}

	sm := s.sessionManager(settings)

	ln, err := s.listen(ctx, "tcp", settings.Address())
	if err != nil {
		if ctx.Err() != nil {
			// Stopped before the listener was bound.
			return nil
		}
		return fmt.Errorf("dispatch: listen on %s: %w", settings.Address(), err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	var sem *semaphore.Weighted
	if settings.MaxConnections > 0 {
		sem = semaphore.NewWeighted(settings.MaxConnections)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	if settings.SweepSchedule != "" {
		lister, ok := sm.(sessionLister)
		if !ok {
			logger.Warn("session manager does not list sessions, sweeper disabled")
		} else {
			sw, err := newSweeper(settings.SweepSchedule, lister, settings.ConnectionTimeout, logger)
			if err != nil {
				cancel()
				_ = g.Wait()
				return err
			}
			g.Go(func() error { return sw.run(gctx) })
		}
	}

	logger.Info("service online",
		slog.String("address", ln.Addr().String()),
		slog.String("root", settings.Root),
		slog.Int("routes", s.routes.Len()),
	)

	if ready := s.ready(); ready != nil {
		if err := recoverHook(func() { ready(s) }); err != nil {
			logger.Error("ready handler failed", slog.Any("error", err))
		}
	}

	g.Go(func() error {
		defer cancel()
		return s.acceptLoop(gctx, ln, sm, sem)
	})

	err = g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	logger.Info("service halted", slog.String("address", ln.Addr().String()))
	return err
}

// Stop makes a running Start return. In-flight sessions are not closed.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return ErrServiceNotRunning
	}
	s.cancel()
	return nil
}

func (s *Service) ready() ReadyHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyHandler
}

func (s *Service) sessionManager(settings Settings) SessionManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions != nil {
		return s.sessions
	}
	parser := s.parser
	if parser == nil {
		parser = HTTPParser{MaxBodyBytes: settings.MaxBodyBytes}
	}
	return NewConnSessionManager(
		WithSessionParser(parser),
		WithSessionTimeout(settings.ConnectionTimeout),
		WithSessionDefaultHeaders(settings.DefaultHeaders),
		WithSessionStatusLookup(s.statusText),
		WithSessionLogger(s.logger),
	)
}

// acceptLoop hands every accepted connection to its own goroutine.
func (s *Service) acceptLoop(ctx context.Context, ln net.Listener, sm SessionManager, sem *semaphore.Weighted) error {
	var delay time.Duration
	for {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if sem != nil {
				sem.Release(1)
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if !errors.As(err, &ne) {
				return fmt.Errorf("dispatch: accept: %w", err)
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.logger.Warn("accept failed, retrying", slog.Any("error", err), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		release := func() {}
		if sem != nil {
			var once sync.Once
			release = func() { once.Do(func() { sem.Release(1) }) }
		}
		go s.serve(ctx, conn, sm, release)
	}
}

// serve runs the pipeline for one connection.
func (s *Service) serve(ctx context.Context, conn net.Conn, sm SessionManager, release func()) {
	s.mu.Lock()
	tracer := tracerFrom(s.tracerProvider)
	logger := s.logger
	s.mu.Unlock()

	ctx, span := startSessionSpan(context.WithoutCancel(ctx), tracer)
	sess, err := sm.Create(ctx, conn)
	if err != nil {
		logger.Error("failed to create session", slog.Any("error", err))
		_ = conn.Close()
		span.End()
		release()
		return
	}
	endSpanOnClose(sess, span)
	sess.OnClose(func(*Session) { release() })

	run := chain(logger, s.fault,
		s.loadStage(sm),
		s.authenticateStage,
		s.routeStage,
		s.resourceAuthenticateStage,
		s.resolveStage,
		s.handlerStage,
	)
	run(sess)
}

func (s *Service) loadStage(sm SessionManager) Stage {
	return func(sess *Session, next func(*Session)) {
		if err := sm.Load(sess.Context(), sess); err != nil {
			s.transportFailure(sess, err)
			return
		}
		annotateRequest(sess)
		req := sess.Request()
		sess.Logger().Debug("request received",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)
		next(sess)
	}
}

func (s *Service) authenticateStage(sess *Session, next func(*Session)) {
	s.mu.Lock()
	auth := s.authHandler
	s.mu.Unlock()
	if auth == nil {
		next(sess)
		return
	}
	auth(sess, next)
}

func (s *Service) routeStage(sess *Session, next func(*Session)) {
	req := sess.Request()
	res := s.routes.Lookup(req.Path)
	if res == nil {
		s.fail(sess, nil, &HTTPError{Code: http.StatusNotFound, Err: ErrNotFound})
		return
	}
	sess.setResource(res)
	annotateRoute(sess, req.Path)
	next(sess)
}

func (s *Service) resourceAuthenticateStage(sess *Session, next func(*Session)) {
	auth := sess.Resource().authentication()
	if auth == nil {
		next(sess)
		return
	}
	auth(sess, next)
}

func (s *Service) resolveStage(sess *Session, next func(*Session)) {
	req := sess.Request()
	res := sess.Resource()
	h := res.ResolveHandler(req.Method, req.Headers)
	if h == nil {
		if methods := res.Methods(); len(methods) > 0 {
			sess.SetHeader("Allow", strings.Join(methods, ", "))
		}
		s.fail(sess, res, &HTTPError{Code: http.StatusMethodNotAllowed, Err: ErrMethodNotAllowed})
		return
	}
	sess.handler = h
	next(sess)
}

func (s *Service) handlerStage(sess *Session, _ func(*Session)) {
	sess.inHandler.Store(true)
	err := callHandler(sess.handler, sess)
	sess.inHandler.Store(false)
	if err != nil {
		s.fault(sess, err)
	}
}

// fault handles a returned error or a recovered panic.
func (s *Service) fault(sess *Session, err error) {
	var pe *PanicError
	if errors.As(err, &pe) {
		sess.Logger().Error("panic recovered",
			slog.Any("panic", pe.Value),
			slog.String("stack", string(pe.Stack)),
		)
	} else {
		sess.Logger().Error("handler failed", slog.Any("error", err))
	}
	recordError(sess, err)

	if sess.IsClosed() {
		return
	}
	s.fail(sess, sess.Resource(), err)
}

// fail notifies the error hooks and closes the session if they left it open.
// The resource hook, when set, is used instead of the service hook.
func (s *Service) fail(sess *Session, res *Resource, err error) {
	status := StatusFromError(err)

	var hook ErrorHandler
	if res != nil {
		hook = res.errorHook()
	}
	if hook == nil {
		s.mu.Lock()
		hook = s.errorHandler
		s.mu.Unlock()
	}

	if hook != nil {
		if perr := recoverHook(func() { hook(sess, status, err) }); perr != nil {
			sess.Logger().Error("error handler panicked", slog.Any("error", perr))
			_ = sess.CloseWithError(perr)
			return
		}
	}
	if sess.IsOpen() {
		_ = sess.CloseWithError(err)
	}
}

// transportFailure ends a session whose request could not be read.
func (s *Service) transportFailure(sess *Session, err error) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		sess.Logger().Warn("request body too large", slog.Any("error", err))
		_ = sess.CloseWithError(&HTTPError{Code: http.StatusRequestEntityTooLarge, Err: err})
	case errors.Is(err, ErrMalformedRequest):
		sess.Logger().Warn("malformed request", slog.Any("error", err))
		_ = sess.CloseWithError(&HTTPError{Code: http.StatusBadRequest, Err: err})
	default:
		sess.Logger().Debug("connection ended before a request was read", slog.Any("error", err))
		sess.Abort()
	}
}
