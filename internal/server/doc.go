// Package server is the local status server used by UI clients.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method-qualified patterns, so a known path hit
// with the wrong method answers 405.
//
// # Endpoints
//
//	GET  /health  liveness
//	GET  /status  current sync status
//	GET  /queue   mutation queue entries, ?state=pending|processing|failed
//	POST /sync    force a processor run and return its result
//	GET  /events  server-sent "status" events at the start and end of every run
//
// The event stream opens with the current status and sends a comment line every 15 seconds to keep
// idle proxies from closing it.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
