package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
)

// Loader reads the full current state of one user's ledger.
type Loader func(ctx context.Context, userID string) ([]core.Transaction, error)

// Hub fans full-state snapshots out to the subscribers of each user.
// Deliveries for one user are serialized, so a subscriber never sees an
// older state after a newer one.
type Hub struct {
	load Loader

	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64

	// Polling lifecycle
	pollMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type topic struct {
	mu          sync.Mutex
	subs        map[uint64]ChangeFunc
	pending     int
	fingerprint uint64
	delivered   bool
}

// NewHub creates a hub that reads snapshots with load.
func NewHub(load Loader) *Hub {
	return &Hub{
		load:   load,
		topics: make(map[string]*topic),
	}
}

// Subscribe registers fn for userID and delivers the current state before
// returning. A failing initial load is returned as a SubscriptionError.
func (h *Hub) Subscribe(ctx context.Context, userID string, fn ChangeFunc) (Unsubscribe, error) {
	h.mu.Lock()
	t, ok := h.topics[userID]
	if !ok {
		t = &topic{subs: make(map[uint64]ChangeFunc)}
		h.topics[userID] = t
	}
	h.nextID++
	id := h.nextID
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
	h.mu.Unlock()

	t.mu.Lock()
	t.pending--
	txs, err := h.load(ctx, userID)
	if err != nil {
		t.mu.Unlock()
		h.dropIfIdle(userID, t)
		return nil, &core.SubscriptionError{UserID: userID, Err: err}
	}
	t.subs[id] = fn
	t.fingerprint = fingerprint(txs)
	t.delivered = true
	fn(txs, nil)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			h.dropIfIdle(userID, t)
		})
	}, nil
}

func (h *Hub) dropIfIdle(userID string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 && t.pending == 0 && h.topics[userID] == t {
		delete(h.topics, userID)
	}
}

// Notify reloads userID's ledger and pushes it to every subscriber.
func (h *Hub) Notify(ctx context.Context, userID string) {
	h.refresh(ctx, userID, true)
}

// Refresh reloads userID's ledger and pushes it only when it changed since
// the last delivery. Load failures are always pushed.
func (h *Hub) Refresh(ctx context.Context, userID string) {
	h.refresh(ctx, userID, false)
}

func (h *Hub) refresh(ctx context.Context, userID string, force bool) {
	h.mu.Lock()
	t, ok := h.topics[userID]
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return
	}

	txs, err := h.load(ctx, userID)
	if err != nil {
		serr := &core.SubscriptionError{UserID: userID, Err: err}
		for _, fn := range t.subs {
			fn(nil, serr)
		}
		return
	}

	fp := fingerprint(txs)
	if !force && t.delivered && fp == t.fingerprint {
		return
	}
	t.fingerprint = fp
	t.delivered = true
	for _, fn := range t.subs {
		fn(cloneSnapshot(txs), nil)
	}
}

// Users returns the ids of users that currently have subscribers.
func (h *Hub) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]string, 0, len(h.topics))
	for u := range h.topics {
		users = append(users, u)
	}
	return users
}

// RefreshAll refreshes every subscribed user.
func (h *Hub) RefreshAll(ctx context.Context) {
	for _, u := range h.Users() {
		h.Refresh(ctx, u)
	}
}

// StartPolling refreshes every subscribed user at the given interval. It
// picks up changes written by other processes when no change bus is wired.
func (h *Hub) StartPolling(ctx context.Context, interval time.Duration) error {
	h.pollMu.Lock()
	if h.running {
		h.pollMu.Unlock()
		return fmt.Errorf("hub poller is already running")
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.pollMu.Unlock()

	go h.pollLoop(ctx, interval)

	slog.InfoContext(ctx, "Ledger poller started", "interval", interval)
	return nil
}

func (h *Hub) pollLoop(ctx context.Context, interval time.Duration) {
	defer close(h.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RefreshAll(ctx)
		}
	}
}

// Stop halts polling and waits for the loop to exit.
func (h *Hub) Stop(ctx context.Context) error {
	h.pollMu.Lock()
	if !h.running {
		h.pollMu.Unlock()
		return nil
	}
	h.running = false
	close(h.stopCh)
	done := h.doneCh
	h.pollMu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fingerprint(txs []core.Transaction) uint64 {
	f := fnv.New64a()
	for _, tx := range txs {
		f.Write([]byte(tx.ID))
		f.Write([]byte{0})
	}
	return f.Sum64()
}

func cloneSnapshot(txs []core.Transaction) []core.Transaction {
	return append([]core.Transaction(nil), txs...)
}
