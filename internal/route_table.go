package internal

import (
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// RouteTable maps normalized paths to published resources.
// Lookups may run concurrently with each other; Publish and Suppress are
// serialized against everything.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]*Resource
	root   string
	fold   bool
	logger *slog.Logger
}

// NewRouteTable creates an empty table rooted at "/".
func NewRouteTable(logger *slog.Logger) *RouteTable {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RouteTable{
		routes: make(map[string]*Resource),
		root:   "/",
		logger: logger,
	}
}

// key returns the table key for a resource path.
func (t *RouteTable) key(p string) string {
	return normalizePath(t.root, p, t.fold)
}

// normalizePath joins p under root, cleans it and optionally case-folds it.
func normalizePath(root, p string, fold bool) string {
	k := path.Join("/", root, p)
	if fold {
		// A Caser keeps state and is not safe for concurrent use.
		k = cases.Fold().String(k)
	}
	return k
}

// Publish routes every path of r to r.
// A nil or pathless resource is ignored. If any path is already routed to
// another resource, nothing is inserted and a *CollisionError is returned.
func (t *RouteTable) Publish(r *Resource) error {
	if r == nil {
		return nil
	}
	paths := r.Paths()
	if len(paths) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(paths))
	var taken []string
	for _, p := range paths {
		k := t.key(p)
		if slices.Contains(keys, k) {
			continue
		}
		if _, ok := t.routes[k]; ok {
			taken = append(taken, p)
		}
		keys = append(keys, k)
	}
	if len(taken) > 0 {
		return &CollisionError{Paths: taken}
	}

	for _, k := range keys {
		t.routes[k] = r
	}
	t.logger.Info("published resource", slog.String("paths", strings.Join(paths, ", ")))
	return nil
}

// Suppress removes every path owned by r. Paths that are missing, or that
// now belong to another resource, are logged and skipped.
func (t *RouteTable) Suppress(r *Resource) {
	if r == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range r.Paths() {
		k := t.key(p)
		owner, ok := t.routes[k]
		switch {
		case !ok:
			t.logger.Warn("failed to suppress resource route, not found", slog.String("path", p))
		case owner != r:
			t.logger.Warn("failed to suppress resource route, owned by another resource", slog.String("path", p))
		default:
			delete(t.routes, k)
			t.logger.Info("suppressed resource route", slog.String("path", p))
		}
	}
}

// Lookup returns the resource routed at the request path, or nil.
func (t *RouteTable) Lookup(requestPath string) *Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.routes[normalizePath("/", requestPath, t.fold)]
}

// Paths returns the routed keys, sorted.
func (t *RouteTable) Paths() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.routes))
	for k := range t.routes {
		out = append(out, k)
	}
	t.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of routed paths.
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// Configure re-keys the table for a new root and case folding mode.
// If folding makes two resources share a key the table is left unchanged
// and a *CollisionError is returned.
func (t *RouteTable) Configure(root string, fold bool) error {
	if root == "" {
		root = "/"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if root == t.root && fold == t.fold {
		return nil
	}

	// Rebuild from each distinct resource's own paths.
	seen := make(map[*Resource]struct{}, len(t.routes))
	next := make(map[string]*Resource, len(t.routes))
	var taken []string
	for _, r := range t.routes {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		for _, p := range r.Paths() {
			if t.routes[t.key(p)] != r {
				continue
			}
			k := normalizePath(root, p, fold)
			if owner, ok := next[k]; ok && owner != r {
				taken = append(taken, p)
				continue
			}
			next[k] = r
		}
	}
	if len(taken) > 0 {
		slices.Sort(taken)
		return &CollisionError{Paths: taken}
	}

	t.routes = next
	t.root = root
	t.fold = fold
	return nil
}

// SetLogger replaces the table's logger.
func (t *RouteTable) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	t.mu.Lock()
	t.logger = l
	t.mu.Unlock()
}
