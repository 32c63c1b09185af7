package internal

import (
	"net/http"
	"slices"
	"sync"
)

// methodHandler is one registration on a Resource.
type methodHandler struct {
	method  string
	filters []Filter
	handler HandlerFunc
}

// Resource is an endpoint: the paths it answers for, its method handlers
// and optional authentication and error hooks.
//
// Registration is safe for concurrent use, but a Resource is expected to be
// fully configured before it is published.
type Resource struct {
	mu           sync.RWMutex
	paths        []string
	handlers     []methodHandler
	authHandler  AuthHandler
	errorHandler ErrorHandler
}

// NewResource creates a resource answering for the given paths.
func NewResource(paths ...string) *Resource {
	r := &Resource{}
	for _, p := range paths {
		r.AddPath(p)
	}
	return r
}

// AddPath adds a path. Duplicates and empty strings are ignored.
func (r *Resource) AddPath(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.paths, path) {
		r.paths = append(r.paths, path)
	}
}

// SetPath replaces the path set with a single path.
func (r *Resource) SetPath(path string) {
	r.SetPaths(path)
}

// SetPaths replaces the path set.
func (r *Resource) SetPaths(paths ...string) {
	r.mu.Lock()
	r.paths = nil
	r.mu.Unlock()
	for _, p := range paths {
		r.AddPath(p)
	}
}

// Paths returns a sorted copy of the path set.
func (r *Resource) Paths() []string {
	r.mu.RLock()
	out := slices.Clone(r.paths)
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// SetMethodHandler registers h for method, guarded by filters.
// Handlers for the same method are tried in registration order.
// Returns a *MethodError if method is not a recognized verb; the resource
// is left unchanged on any error.
func (r *Resource) SetMethodHandler(method string, h HandlerFunc, filters ...Filter) error {
	verb, err := NormalizeMethod(method)
	if err != nil {
		return err
	}
	if h == nil {
		return ErrNilHandler
	}
	for _, f := range filters {
		if f.Pattern == nil || f.Header == "" {
			return ErrInvalidFilter
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, methodHandler{
		method:  verb,
		filters: slices.Clone(filters),
		handler: h,
	})
	return nil
}

// SetFilteredMethodHandler registers h for method with filters in map form.
// Map entries are evaluated in header-name order.
func (r *Resource) SetFilteredMethodHandler(method string, filters Filters, h HandlerFunc) error {
	if _, err := NormalizeMethod(method); err != nil {
		return err
	}
	compiled, err := filters.compile()
	if err != nil {
		return err
	}
	return r.SetMethodHandler(method, h, compiled...)
}

// SetAuthenticationHandler sets the resource-level gate.
func (r *Resource) SetAuthenticationHandler(h AuthHandler) {
	r.mu.Lock()
	r.authHandler = h
	r.mu.Unlock()
}

// SetErrorHandler sets the resource-level error hook.
// It takes precedence over the service hook for faults on this resource.
func (r *Resource) SetErrorHandler(h ErrorHandler) {
	r.mu.Lock()
	r.errorHandler = h
	r.mu.Unlock()
}

// ResolveHandler returns the first handler registered for method whose
// filters all accept headers, or nil. Request methods are case-sensitive:
// only registration normalizes case.
func (r *Resource) ResolveHandler(method string, headers http.Header) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mh := range r.handlers {
		if mh.method != method {
			continue
		}
		if matchAll(mh.filters, headers) {
			return mh.handler
		}
	}
	return nil
}

// Methods returns the distinct verbs that have at least one handler, sorted.
func (r *Resource) Methods() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for _, mh := range r.handlers {
		if !slices.Contains(out, mh.method) {
			out = append(out, mh.method)
		}
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// HandlerCount returns the number of registrations.
func (r *Resource) HandlerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Resource) authentication() AuthHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authHandler
}

func (r *Resource) errorHook() ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errorHandler
}
