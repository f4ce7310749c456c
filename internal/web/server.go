// Package web provides the HTTP server and handlers for the session engine API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sessionlake/internal/core"
	"github.com/JonMunkholm/sessionlake/internal/metrics"
	"github.com/JonMunkholm/sessionlake/internal/web/middleware"
)

// Options configures a Server.
type Options struct {
	TrustedProxies []string

	RateLimitEnabled  bool
	RequestsPerMinute int

	// RequestTimeout bounds every API request, including ad-hoc SQL.
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// Server is the HTTP server for the session engine.
type Server struct {
	service *core.Service
	opts    Options
	router  *chi.Mux
	server  *http.Server
	limiter *middleware.RateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 100
	}
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.opts.RequestTimeout))

	s.router.Use(securityHeaders)

	if s.opts.RateLimitEnabled {
		s.limiter = middleware.NewRateLimiter(s.opts.RequestsPerMinute, time.Minute)
	}
}

// rejectRateLimited writes the 429 body; Retry-After is set by the limiter.
func rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	respondErrorJSON(w, core.MapError(errRateLimited), http.StatusTooManyRequests)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// Probes and scrapes are not rate limited.
	s.router.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Handler(rejectRateLimited))
		}
		r.Route("/sessions/{userID}/{sessionID}", func(r chi.Router) {
			// Initialization and binding
			r.Post("/init", s.handleInitSession)
			r.Post("/sources", s.handleBindSource)

			// Query and analysis
			r.Post("/sql", s.handleExecuteSQL)
			r.Post("/analysis", s.handleQuickAnalysis)
			r.Get("/views", s.handleListViews)

			// Artifacts
			r.Get("/files", s.handleListFiles)
			r.Delete("/files/{name}", s.handleDeleteFile)

			// Scripts
			r.Post("/scripts", s.handleRunScript)
		})

		r.Post("/reset", s.handleReset)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
