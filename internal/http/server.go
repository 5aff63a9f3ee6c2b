// Package http exposes the ledger of the signed-in user as a JSON API with
// PNG chart renderings.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/analytics"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/charts"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/session"
)

const (
	defaultDashboardCacheSize = 500
	defaultDashboardCacheTTL  = 5 * time.Minute
	cacheCleanupInterval      = 10 * time.Minute
)

// Config tunes the HTTP layer. Zero values fall back to defaults.
type Config struct {
	Addr        string
	TrendWindow int
	RateLimit   ratelimit.Config

	DashboardCacheSize int
	DashboardCacheTTL  time.Duration

	// Ready reports whether the ledger backend is reachable.
	Ready func(context.Context) error
	Now   func() time.Time
}

type Server struct {
	http.Server

	sessions    *session.Manager
	auth        auth.Provider
	renderer    *charts.Renderer
	ready       func(context.Context) error
	now         func() time.Time
	trendWindow int
	logger      *log.Logger

	dashboards *cache.LRUCache[analytics.Dashboard]
	caches     *cache.Manager
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server. Sessions
// are owned by the caller; Shutdown does not release them.
func NewServer(cfg Config, sessions *session.Manager, provider auth.Provider) *Server {
	if cfg.TrendWindow < 0 {
		cfg.TrendWindow = analytics.DefaultTrendWindow
	}
	if cfg.DashboardCacheSize <= 0 {
		cfg.DashboardCacheSize = defaultDashboardCacheSize
	}
	if cfg.DashboardCacheTTL <= 0 {
		cfg.DashboardCacheTTL = defaultDashboardCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	clientIP := security.NewClientIP()
	s := &Server{
		sessions:    sessions,
		auth:        provider,
		renderer:    charts.NewRenderer(),
		ready:       cfg.Ready,
		now:         cfg.Now,
		trendWindow: cfg.TrendWindow,
		logger:      log.Default().WithComponent(log.ComponentHTTP),
		dashboards:  cache.NewLRUCache[analytics.Dashboard](cfg.DashboardCacheSize, cfg.DashboardCacheTTL),
		caches:      cache.NewManager(),
		limiter:     ratelimit.NewLimiter(cfg.RateLimit),
		tracer:      trace.NewMiddleware(clientIP.Extract),
	}
	s.caches.Register(s.dashboards)
	s.caches.Start(context.Background(), cacheCleanupInterval)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(s.tracer.Handler)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).Warn("Rate limit exceeded", log.FieldPath, r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		}))

		r.Get("/categories", s.handleCategories)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth))

			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/analytics", s.handleAnalytics)
			r.Get("/trend.png", s.handleTrendChart)
			r.Get("/breakdown.png", s.handleBreakdownChart)
			r.Get("/export.xlsx", s.handleExport)
			r.Post("/session/signout", s.handleSignOut)
		})
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
