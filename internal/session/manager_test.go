package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/transactions"
)

// countingStore wraps the memory store and counts live subscriptions.
type countingStore struct {
	*memory.Store
	mu   sync.Mutex
	live int
}

func (c *countingStore) Subscribe(ctx context.Context, userID string, fn ledger.ChangeFunc) (ledger.Unsubscribe, error) {
	unsub, err := c.Store.Subscribe(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.live++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			c.mu.Lock()
			c.live--
			c.mu.Unlock()
		})
	}, nil
}

func (c *countingStore) liveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func TestManagerReusesSessionPerUser(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(store, Config{})
	defer m.Stop(context.Background())

	a, err := m.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := m.Get(context.Background(), "u1")
	if a != b {
		t.Fatal("expected the same session for the same user")
	}
	if _, err := m.Get(context.Background(), "u2"); err != nil {
		t.Fatalf("get u2: %v", err)
	}
	if m.Len() != 2 || store.liveCount() != 2 {
		t.Fatalf("expected 2 sessions and subscriptions, got %d/%d", m.Len(), store.liveCount())
	}
	if _, err := m.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user")
	}
}

func TestManagerSignOutReleasesSubscription(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(store, Config{})
	defer m.Stop(context.Background())

	if _, err := m.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !m.SignOut("u1") {
		t.Fatal("expected a session to be released")
	}
	if m.SignOut("u1") {
		t.Fatal("second sign out should report no session")
	}
	if store.liveCount() != 0 {
		t.Fatalf("subscription leaked: %d live", store.liveCount())
	}
}

func TestManagerSweepReleasesIdleSessions(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(store, Config{IdleTimeout: time.Minute})
	defer m.Stop(context.Background())

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, err := m.Get(context.Background(), "idle"); err != nil {
		t.Fatalf("get: %v", err)
	}
	now = now.Add(50 * time.Second)
	if _, err := m.Get(context.Background(), "busy"); err != nil {
		t.Fatalf("get: %v", err)
	}
	now = now.Add(20 * time.Second)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 idle session released, got %d", n)
	}
	if m.Len() != 1 || store.liveCount() != 1 {
		t.Fatalf("expected busy session to survive, got %d/%d", m.Len(), store.liveCount())
	}
}

func TestManagerTracksLatestSnapshot(t *testing.T) {
	m := NewManager(memory.New(), Config{RepoOptions: []transactions.Option{
		transactions.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}})
	defer m.Stop(context.Background())

	s, err := m.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, err = s.Repo.Add(context.Background(), transactions.Draft{
		Type:     core.Income,
		Amount:   decimal.NewFromInt(10),
		Category: core.Salary,
		Title:    "Pay",
		Date:     core.NewDate(2025, time.January, 1),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Latest().Version != s.Repo.Version() {
		if time.Now().After(deadline) {
			t.Fatalf("latest snapshot %d never caught up with %d", s.Latest().Version, s.Repo.Version())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.Latest().Transactions) != 1 {
		t.Fatalf("unexpected latest snapshot %+v", s.Latest())
	}
}

func TestManagerStopReleasesEverything(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx, 10*time.Millisecond); err == nil {
		t.Fatal("expected error when starting twice")
	}
	for _, u := range []string{"a", "b", "c"} {
		if _, err := m.Get(context.Background(), u); err != nil {
			t.Fatalf("get %s: %v", u, err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.Len() != 0 || store.liveCount() != 0 {
		t.Fatalf("expected everything released, got %d/%d", m.Len(), store.liveCount())
	}
}

func TestManagerStopReleasesSessionsWhenSweeperIsSlow(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(store, Config{})

	var stall atomic.Bool
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	m.now = func() time.Time {
		if stall.Load() {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		return time.Now()
	}

	for _, u := range []string{"a", "b"} {
		if _, err := m.Get(context.Background(), u); err != nil {
			t.Fatalf("get %s: %v", u, err)
		}
	}
	stall.Store(true)
	if err := m.Start(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if m.Len() != 0 || store.liveCount() != 0 {
		t.Fatalf("sessions leaked, %d/%d", m.Len(), store.liveCount())
	}
}
