// Package session owns the live transaction repository of every signed-in
// user and tears it down on sign-out, idle expiry or shutdown.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/transactions"
)

// DefaultIdleTimeout is used when Config.IdleTimeout is not positive.
const DefaultIdleTimeout = 30 * time.Minute

type Config struct {
	IdleTimeout time.Duration
	// RepoOptions are applied to every repository the manager creates.
	RepoOptions []transactions.Option
}

// Session is one user's live repository plus the newest snapshot it emitted.
type Session struct {
	Repo *transactions.Repository

	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	latest   transactions.Snapshot
	lastUsed time.Time
}

// Latest returns the newest snapshot the session has observed.
func (s *Session) Latest() transactions.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) close() {
	s.cancel()
	s.Repo.Close()
	<-s.done
}

type Manager struct {
	store   ledger.Store
	cfg     Config
	now     func() time.Time
	logger  *log.Logger
	opening singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session

	// Sweeper lifecycle
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewManager(store ledger.Store, cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.Default().WithComponent(log.ComponentSession),
		sessions: make(map[string]*Session),
	}
}

// Get returns userID's session, opening and subscribing it on first use.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("open session: empty user id")
	}

	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
		return s, nil
	}

	v, err, _ := m.opening.Do(userID, func() (any, error) {
		m.mu.Lock()
		if s, ok := m.sessions[userID]; ok {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s, err := m.open(userID)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[userID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s = v.(*Session)
	s.touch(m.now())
	return s, nil
}

// open subscribes a new repository. The subscription outlives the request
// that triggered it, so it runs on its own context.
func (m *Manager) open(userID string) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := transactions.New(m.store, userID, m.cfg.RepoOptions...)

	ch, err := repo.Subscribe(ctx)
	if err != nil {
		cancel()
		repo.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	s := &Session{
		Repo:     repo,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastUsed: m.now(),
	}
	go func() {
		defer close(s.done)
		for snap := range ch {
			s.mu.Lock()
			s.latest = snap
			s.mu.Unlock()
		}
	}()

	m.logger.Info("Session opened", log.FieldUserID, userID)
	return s, nil
}

// SignOut releases userID's session. It reports whether one existed.
func (m *Manager) SignOut(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.close()
	m.logger.Info("Session closed", log.FieldUserID, userID, "reason", "sign_out")
	return true
}

// Sweep releases every session unused for longer than the idle timeout and
// returns how many were released.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	var users []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			users = append(users, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for i, s := range expired {
		s.close()
		m.logger.Info("Session closed", log.FieldUserID, users[i], "reason", "idle")
	}
	return len(expired)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the idle sweeper until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("session sweeper is already running")
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.sweepLoop(ctx, interval, m.stopCh, m.doneCh)

	m.logger.InfoContext(ctx, "Session sweeper started",
		"interval", interval,
		"idle_timeout", m.cfg.IdleTimeout)
	return nil
}

func (m *Manager) sweepLoop(ctx context.Context, interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Idle sessions released", "count", n)
			}
		}
	}
}

// Stop halts the sweeper and releases every open session. Sessions are
// released even when ctx expires before the sweeper exits.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	var done chan struct{}
	if m.running {
		m.running = false
		close(m.stopCh)
		done = m.doneCh
	}
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.close()
		m.logger.Info("Session closed", log.FieldUserID, id, "reason", "shutdown")
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
