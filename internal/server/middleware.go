package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/sessions"
	"github.com/nmoreira/spotiproxy/internal/shared"
	"golang.org/x/time/rate"
)

type contextKey string

const tokenContextKey contextKey = "access_token"

// WithToken returns a context carrying a validated Spotify access token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext extracts the access token attached by [SessionGuard].
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

// sessionID resolves the session identifier from the "session" header or query parameter.
func sessionID(r *http.Request) string {
	if id := r.Header.Get("session"); id != "" {
		return id
	}
	return r.URL.Query().Get("session")
}

// SessionGuard gates a route behind a valid session.
//
// Resolves the session identifier from the request, asks the manager for a
// currently valid access token (refreshing transparently when expired), and
// attaches it to the request context. Requests with an absent or unknown
// session, or whose refresh is rejected, are answered 401 without ever
// reaching the wrapped handler.
func SessionGuard(manager *sessions.Manager, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := manager.Access(r.Context(), sessionID(r))
			if err != nil {
				respondError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}

// RequestLogger logs one line per request with method, path, status, and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start),
			)
		})
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// CORS allows the configured frontend origin to call the proxy from a browser.
//
// An empty frontendURL allows any origin. Preflight requests are answered
// directly with 204.
func CORS(frontendURL string) Middleware {
	origin := frontendURL
	if origin == "" {
		origin = "*"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, session")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces a per-client request rate using [rate.Limiter].
//
// Clients are keyed by remote IP. Limiters are created on first sight and
// kept for the life of the process. A non-positive limit disables the
// middleware.
func RateLimit(limit float64, burst int) Middleware {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(limit), burst)
			limiters[key] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				key = r.RemoteAddr
			}

			if !limiterFor(key).Allow() {
				respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: shared.ErrTooManyRequests.Error()})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
