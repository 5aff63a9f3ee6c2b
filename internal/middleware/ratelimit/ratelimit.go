// Package ratelimit throttles requests per client with token buckets.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*client
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	// Configuration
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
	idleTTL         time.Duration

	rejected atomic.Int64
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
	// IdleTTL is how long an unused client bucket is kept.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine. Call Stop
// to release it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}

	rl := &Limiter{
		clients:         make(map[string]*client),
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		rps:             rate.Limit(config.RequestsPerSecond),
		burst:           config.Burst,
		cleanupInterval: config.CleanupInterval,
		idleTTL:         config.IdleTTL,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from key may proceed now.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	if !c.limiter.AllowN(now, 1) {
		rl.rejected.Add(1)
		return false
	}
	return true
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Rejected returns how many requests were refused so far.
func (rl *Limiter) Rejected() int64 {
	return rl.rejected.Load()
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware creates HTTP middleware for rate limiting. onLimit may be nil.
func (rl *Limiter) Middleware(extractKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(1/float64(rl.rps))))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(extractKey(r)) {
				w.Header().Set("Retry-After", retryAfter)
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
