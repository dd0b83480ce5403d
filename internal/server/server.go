// package server contains the HTTP routing, middleware, and handlers for the proxy
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	// Use adds middleware to the router's global middleware stack
	Use(middleware ...Middleware)
	// Handle registers a handler for the specified method and path, with optional route-level middleware
	Handle(method, path string, handler http.Handler, middleware ...Middleware)
	// ServeHTTP implements http.Handler for the entire router
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Server wires the routing table to an http.Server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// New assembles the full routing table for the proxy.
//
// The guard middleware is applied per-route to every endpoint that forwards
// calls to Spotify; login, callback, logout, and health stay unguarded.
func New(config *shared.Config, auth *AuthHandler, api *APIHandler, guard Middleware, logger *log.Logger) *Server {
	router := NewBasicRouter()
	router.Use(
		RequestLogger(shared.WithLogger(logger, "component", "http")),
		CORS(config.Server.FrontendURL),
		RateLimit(config.Server.RateLimit, config.Server.RateBurst),
	)

	router.Handle(http.MethodGet, "/health", http.HandlerFunc(Health))
	router.Handle(http.MethodGet, "/api/login", http.HandlerFunc(auth.Login))
	router.Handle(http.MethodGet, "/api/callback", http.HandlerFunc(auth.Callback))
	router.Handle(http.MethodPost, "/api/logout", http.HandlerFunc(auth.Logout))

	router.Handle(http.MethodGet, "/api/me", http.HandlerFunc(api.Me), guard)
	router.Handle(http.MethodGet, "/api/search", http.HandlerFunc(api.Search), guard)
	router.Handle(http.MethodPost, "/api/create-playlist", http.HandlerFunc(api.CreatePlaylist), guard)
	router.Handle(http.MethodPost, "/api/upload-playlist-image/{playlistId}", http.HandlerFunc(api.UploadImage), guard)

	return &Server{
		httpServer: &http.Server{
			Addr:              config.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
