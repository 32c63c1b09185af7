// Package internal provides the core types and implementation for dispatch.
//
// This package is internal and should not be used directly. Import
// "github.com/dmitrymomot/dispatch" instead, which re-exports the public API.
//
// # Core Types
//
//   - Service: owns the listener, route table, session manager and hooks
//   - Resource: paths plus method handlers, a gate and an error hook
//   - Session: one request/response exchange on an accepted connection
//   - Request: the parsed request a Parser produced
//   - Filter: a full-match header predicate guarding a handler
//   - SessionManager: creates sessions and loads their requests
//   - Settings: bind address, port, root, timeouts and default headers
//
// # Pipeline
//
// Every accepted connection is dispatched through a fixed sequence of stages
// in continuation-passing style:
//
//	load → service_auth → route → resource_auth → resolve → handler
//
// A stage receives the session and a continuation. It either calls the
// continuation or closes the session; a closed session stops the pipeline.
// The continuation runs at most once. Panics in stages, gates, handlers and
// error hooks are recovered and close the session with 500.
//
// # Routing
//
// The route table maps normalized path keys to resources. Keys are joined
// under the configured root at start and optionally case folded. Publishing
// a resource whose path is already taken fails with a *CollisionError and
// leaves the table unchanged.
//
// Within a resource, handlers for a method are evaluated in registration
// order and the first one whose filters all match wins.
//
// # Errors
//
// Handlers return errors to let the error hooks decide the response. The
// resource hook replaces the service hook when set; 404 only reaches the
// service hook. A session still open after the hook is closed with the
// status from StatusFromError. Transport failures while reading the request
// close with 400 or 413, or drop the connection.
//
// # Lifecycle
//
// Start blocks until the context is cancelled or Stop is called. Stop stops
// accepting; sessions already in flight keep their own context and finish.
// A stopped service can be started again with new settings. Run wraps Start
// with signal handling and startup/shutdown hooks.
package internal
