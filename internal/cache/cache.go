// Package cache holds the in-process caches used for rendered views.
package cache

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// DeletePrefix drops every key starting with prefix and returns how many went.
	DeletePrefix(prefix string) int
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically purges expired entries from registered caches.
type Manager struct {
	logger *log.Logger

	mu      sync.Mutex
	caches  []Cleaner
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{logger: log.Default().WithComponent(log.ComponentCache)}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// CleanAll purges every registered cache once and returns the total removed.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Start begins periodic cleanup until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := m.CleanAll(); n > 0 {
					m.logger.Debug("Expired cache entries removed", "count", n)
				}
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()
	<-done
}
