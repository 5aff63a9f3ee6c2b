// Package trace logs the completion of every HTTP request.
package trace

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/log"
)

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
}

// Middleware logs request outcomes through the request-scoped logger.
type Middleware struct {
	extractIP func(*http.Request) string
	total     atomic.Int64
	errors    atomic.Int64
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP}
}

// Handler returns HTTP middleware for request tracing
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.total.Add(1)
		if status >= 500 {
			m.errors.Add(1)
		}

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogHTTPEnd(r.Context(), r, status, time.Since(start).Milliseconds(), clientIP)
	})
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: m.total.Load(),
		ServerErrors:  m.errors.Load(),
	}
}
