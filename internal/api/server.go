// Package api provides the HTTP API server: JSON endpoints under /api/v1,
// the SSE stream and the embedded dashboard.
package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/graaaaa/nickutc/internal/app"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux

	// Use case dependencies
	health app.HealthUsecase
	users  app.UsersUsecase
	events app.EventsUsecase
	sleep  app.SleepUsecase
	stats  app.StatsUsecase
	cfg    app.ConfigUsecase

	// SSE hub
	hub *Hub

	// Auth configuration
	authEnabled  bool
	authUsername string
	authPassword string
	authFailures *AuthFailureLimiter

	rateLimiter    *RateLimiter
	allowedOrigins []string
	allowedHosts   []string
	staticFS       fs.FS

	logger *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithUsers sets the users use case.
func WithUsers(u app.UsersUsecase) ServerOption {
	return func(s *Server) { s.users = u }
}

// WithEvents sets the events use case.
func WithEvents(e app.EventsUsecase) ServerOption {
	return func(s *Server) { s.events = e }
}

// WithSleep sets the sleep use case.
func WithSleep(sl app.SleepUsecase) ServerOption {
	return func(s *Server) { s.sleep = sl }
}

// WithStats sets the stats use case.
func WithStats(st app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = st }
}

// WithConfig sets the config use case.
func WithConfig(c app.ConfigUsecase) ServerOption {
	return func(s *Server) { s.cfg = c }
}

// WithHub sets the SSE hub.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithBasicAuth enables HTTP Basic Auth.
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) {
		if username != "" && password != "" {
			s.authEnabled = true
			s.authUsername = username
			s.authPassword = password
		}
	}
}

// WithAuthFailureLimiter locks out clients that keep failing Basic Auth.
func WithAuthFailureLimiter(afl *AuthFailureLimiter) ServerOption {
	return func(s *Server) { s.authFailures = afl }
}

// WithRateLimiter rate limits /api/ requests per client IP.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithAllowedHosts sets extra hosts accepted by the CSRF check.
func WithAllowedHosts(hosts ...string) ServerOption {
	return func(s *Server) { s.allowedHosts = hosts }
}

// WithStaticFS serves the dashboard from fsys at /.
func WithStaticFS(fsys fs.FS) ServerOption {
	return func(s *Server) { s.staticFS = fsys }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:    mux,
		health: health,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // Disable for SSE (long-lived connections)
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the mux wrapped in the global middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.rateLimiter != nil {
		h = s.rateLimiter.Middleware(h)
	}
	h = corsMiddleware(CORSConfig{
		AllowedOrigins:   s.allowedOrigins,
		AllowCredentials: s.authEnabled,
	})(h)
	h = securityHeadersMiddleware(h)
	return requestIDMiddleware(h)
}

// wrapAuth wraps a handler with auth middleware if auth is enabled.
func (s *Server) wrapAuth(h http.Handler) http.Handler {
	if !s.authEnabled {
		return h
	}
	return basicAuthMiddleware(s.authUsername, s.authPassword, s.authFailures)(h)
}

// wrapWrite adds the CSRF origin check in front of auth.
func (s *Server) wrapWrite(h http.Handler) http.Handler {
	return csrfMiddleware(s.allowedHosts)(s.wrapAuth(h))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.wrapAuth(h))
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	// Health stays public so LAN monitors need no credentials.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	if s.users != nil {
		s.handle("GET /api/v1/users", s.handleListUsers)
		s.handle("GET /api/v1/users/{id}", s.handleGetUser)
	}

	if s.users != nil && s.events != nil {
		s.handle("GET /api/v1/users/{id}/events", s.handleUserEvents)
		s.mux.Handle("POST /api/v1/users/{id}/events", s.wrapWrite(http.HandlerFunc(s.handleSubmitEvent)))
	}

	if s.sleep != nil {
		s.handle("GET /api/v1/users/{id}/sleep-periods", s.handleSleepPeriods)
		s.handle("GET /api/v1/users/{id}/timezone-history", s.handleTimezoneHistory)
		s.mux.Handle("POST /api/v1/users/{id}/recompute", s.wrapWrite(http.HandlerFunc(s.handleRecompute)))
	}

	if s.stats != nil {
		s.handle("GET /api/v1/users/{id}/stats", s.handleUserStats)
	}

	if s.hub != nil && s.events != nil {
		s.handle("GET /api/v1/stream", s.handleStream)
	}

	if s.cfg != nil {
		s.handle("GET /api/v1/config", s.handleGetConfig)
		s.mux.Handle("PUT /api/v1/config", s.wrapWrite(http.HandlerFunc(s.handlePutConfig)))
	}

	if s.staticFS != nil {
		s.mux.Handle("GET /", s.wrapAuth(newDashboardHandler(s.staticFS)))
	}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
