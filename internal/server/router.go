package server

import (
	"net/http"
)

// BasicRouter is a simple HTTP router implementing the [Router] interface.
//
// Uses [http.ServeMux] internally with method-qualified patterns, so a path
// registered for one method answers 405 for the others.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		middlewares: []Middleware{},
	}
}

// Use adds [Middleware] to the router's global middleware stack, applied in the order it's added.
//
// Must be called before Handle; routes registered earlier do not pick up
// middleware added later.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for the specified HTTP method and path.
//
// Route-level middleware wraps the handler first, then the global stack wraps
// the result, so global middleware runs before route middleware.
func (r *BasicRouter) Handle(method, path string, handler http.Handler, middleware ...Middleware) {
	wrapped := apply(handler, middleware)
	wrapped = apply(wrapped, r.middlewares)
	r.mux.Handle(method+" "+path, wrapped)
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// apply wraps a handler with the given middleware in reverse order (last added wraps first).
func apply(handler http.Handler, middlewares []Middleware) http.Handler {
	wrapped := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
