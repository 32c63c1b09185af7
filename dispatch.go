package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/dispatch/internal"
	"github.com/dmitrymomot/dispatch/pkg/logger"
)

// Type aliases - public API
type (
	// Service owns the listener, the route table and the dispatch pipeline.
	Service = internal.Service

	// Resource is an endpoint: paths plus method handlers and hooks.
	Resource = internal.Resource

	// Session is one request/response exchange over an accepted connection.
	Session = internal.Session

	// Request is a parsed inbound request.
	Request = internal.Request

	// Filter is a header predicate guarding a method handler.
	Filter = internal.Filter

	// Filters is the map form of header predicates.
	Filters = internal.Filters

	// HandlerFunc produces the response for a routed request.
	HandlerFunc = internal.HandlerFunc

	// AuthHandler is an authentication gate.
	AuthHandler = internal.AuthHandler

	// ErrorHandler is notified of routing misses and handler faults.
	ErrorHandler = internal.ErrorHandler

	// ReadyHandler runs once the listener is bound.
	ReadyHandler = internal.ReadyHandler

	// Settings configures a Service at start.
	Settings = internal.Settings

	// SettingsSource contributes values to LoadSettings.
	SettingsSource = internal.SettingsSource

	// Values is a literal settings source.
	Values = internal.Values

	// SessionManager creates sessions and reads their requests.
	SessionManager = internal.SessionManager

	// Parser reads one request off a connection.
	Parser = internal.Parser

	// ParserFunc adapts a function to Parser.
	ParserFunc = internal.ParserFunc

	// HTTPParser is the default HTTP/1.x parser.
	HTTPParser = internal.HTTPParser

	// StatusLookup maps a status code to its reason phrase.
	StatusLookup = internal.StatusLookup

	// Option configures a Service.
	Option = internal.Option

	// RunOption configures Run.
	RunOption = internal.RunOption

	// Extractor reads a value from a session using ordered sources.
	Extractor = internal.Extractor

	// ExtractorSource reads one candidate value from a session.
	ExtractorSource = internal.ExtractorSource

	// HTTPError carries the status a failed session is closed with.
	HTTPError = internal.HTTPError

	// MethodError describes a registration with an unknown verb.
	MethodError = internal.MethodError

	// CollisionError lists paths that made a publish fail.
	CollisionError = internal.CollisionError

	// PanicError is a recovered panic.
	PanicError = internal.PanicError

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor
)

// Service states.
const (
	StateIdle     = internal.StateIdle
	StateRunning  = internal.StateRunning
	StateStopping = internal.StateStopping
)

// Sentinel errors.
var (
	ErrUnsupportedMethod  = internal.ErrUnsupportedMethod
	ErrInvalidFilter      = internal.ErrInvalidFilter
	ErrNilHandler         = internal.ErrNilHandler
	ErrNamespaceCollision = internal.ErrNamespaceCollision
	ErrServiceRunning     = internal.ErrServiceRunning
	ErrServiceNotRunning  = internal.ErrServiceNotRunning
	ErrMalformedRequest   = internal.ErrMalformedRequest
	ErrBodyTooLarge       = internal.ErrBodyTooLarge
	ErrNotFound           = internal.ErrNotFound
	ErrMethodNotAllowed   = internal.ErrMethodNotAllowed
	ErrNotImplemented     = internal.ErrNotImplemented
	ErrSessionClosed      = internal.ErrSessionClosed
	ErrSessionTimeout     = internal.ErrSessionTimeout
)

// Constructors

// NewService creates an idle service.
//
// Example:
//
//	svc := dispatch.NewService(dispatch.WithLogger(log))
//	users := dispatch.NewResource("/users")
//	users.SetMethodHandler(http.MethodGet, listUsers)
//	if err := svc.Publish(users); err != nil {
//	    return err
//	}
//	return svc.Start(ctx, dispatch.DefaultSettings())
func NewService(opts ...Option) *Service {
	return internal.NewService(opts...)
}

// NewResource creates a resource answering for paths.
func NewResource(paths ...string) *Resource {
	return internal.NewResource(paths...)
}

// NewFilter compiles a full-match header filter.
func NewFilter(header, pattern string) (Filter, error) {
	return internal.NewFilter(header, pattern)
}

// MustFilter is NewFilter that panics on an invalid pattern.
func MustFilter(header, pattern string) Filter {
	return internal.MustFilter(header, pattern)
}

// NewExtractor creates an Extractor trying sources in order.
func NewExtractor(sources ...ExtractorSource) Extractor {
	return internal.NewExtractor(sources...)
}

// FromHeader reads the first value of a request header.
func FromHeader(name string) ExtractorSource {
	return internal.FromHeader(name)
}

// FromQuery reads a query parameter.
func FromQuery(name string) ExtractorSource {
	return internal.FromQuery(name)
}

// FromValue reads a value stored with Session.Set.
func FromValue(key any) ExtractorSource {
	return internal.FromValue(key)
}

// FromBearerToken reads a Bearer token from the Authorization header.
func FromBearerToken() ExtractorSource {
	return internal.FromBearerToken()
}

// SessionIDExtractor adds session_id to records logged with a session context.
func SessionIDExtractor() ContextExtractor {
	return internal.SessionIDExtractor()
}

// Run starts svc and blocks until a shutdown signal, then runs shutdown hooks.
func Run(svc *Service, settings Settings, opts ...RunOption) error {
	return internal.Run(svc, settings, opts...)
}

// Service options

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return internal.WithLogger(l)
}

// WithAuthenticationHandler sets the service-level gate.
func WithAuthenticationHandler(h AuthHandler) Option {
	return internal.WithAuthenticationHandler(h)
}

// WithErrorHandler sets the service-level error hook.
func WithErrorHandler(h ErrorHandler) Option {
	return internal.WithErrorHandler(h)
}

// WithReadyHandler sets the callback run once the listener is bound.
func WithReadyHandler(h ReadyHandler) Option {
	return internal.WithReadyHandler(h)
}

// WithSessionManager replaces the default session manager.
func WithSessionManager(m SessionManager) Option {
	return internal.WithSessionManager(m)
}

// WithParser replaces the request parser.
func WithParser(p Parser) Option {
	return internal.WithParser(p)
}

// WithStatusLookup replaces the reason phrase table.
func WithStatusLookup(fn StatusLookup) Option {
	return internal.WithStatusLookup(fn)
}

// WithTracerProvider sets the provider for session spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return internal.WithTracerProvider(tp)
}

// WithListener makes the service accept on ln.
func WithListener(ln net.Listener) Option {
	return internal.WithListener(ln)
}

// Run options

// ShutdownTimeout bounds shutdown hooks.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// StartupHook runs fn before the service starts.
func StartupHook(fn func(context.Context) error) RunOption {
	return internal.StartupHook(fn)
}

// ShutdownHook runs fn after the service stops.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// Resources publishes resources before the service starts.
func Resources(rs ...*Resource) RunOption {
	return internal.Resources(rs...)
}

// WithContext sets the base context for signal handling.
func WithContext(ctx context.Context) RunOption {
	return internal.WithContext(ctx)
}

// Settings

// DefaultSettings returns settings for port 1984 at root "/".
func DefaultSettings() Settings {
	return internal.DefaultSettings()
}

// LoadSettings applies sources over DefaultSettings in order.
//
// Example:
//
//	settings, err := dispatch.LoadSettings(
//	    dispatch.YAMLFile("dispatch.yaml"),
//	    dispatch.Env("DISPATCH"),
//	)
func LoadSettings(srcs ...SettingsSource) (Settings, error) {
	return internal.LoadSettings(srcs...)
}

// YAML reads settings from a YAML document.
func YAML(r io.Reader) SettingsSource {
	return internal.YAML(r)
}

// YAMLFile reads settings from a YAML file.
func YAMLFile(path string) SettingsSource {
	return internal.YAMLFile(path)
}

// Env reads settings from prefix_KEY environment variables.
func Env(prefix string) SettingsSource {
	return internal.Env(prefix)
}

// Errors and status

// NewHTTPError creates an error carrying a response status.
func NewHTTPError(code int, message string) *HTTPError {
	return internal.NewHTTPError(code, message)
}

// StatusFromError returns the status a session failing with err is closed with.
func StatusFromError(err error) int {
	return internal.StatusFromError(err)
}

// StatusText returns the reason phrase for code.
func StatusText(code int) string {
	return internal.StatusText(code)
}

// SupportedMethods returns the verbs handlers can be registered for.
func SupportedMethods() []string {
	return internal.SupportedMethods()
}

// Session helpers

// Value returns the session value stored under key as T, or the zero value.
func Value[T any](s *Session, key any) T {
	return internal.Value[T](s, key)
}

// Query returns the query parameter name converted to T, or the zero value.
func Query[T ~string | ~int | ~int64 | ~float64 | ~bool](s *Session, name string) T {
	return internal.Query[T](s, name)
}

// QueryDefault is Query returning defaultValue when the parameter is absent
// or does not convert.
func QueryDefault[T ~string | ~int | ~int64 | ~float64 | ~bool](s *Session, name string, defaultValue T) T {
	return internal.QueryDefault(s, name, defaultValue)
}
