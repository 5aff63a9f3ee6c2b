// Package transactions keeps a live, optimistically updated view of one
// user's ledger on top of a ledger.Store subscription.
package transactions

import (
	"context"
	"errors"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

var (
	ErrClosed            = errors.New("repository is closed")
	ErrAlreadySubscribed = errors.New("repository already has a live subscription")
)

var strictPolicy = bluemonday.StrictPolicy()

// Draft holds the caller-supplied fields of a new transaction.
type Draft struct {
	Type     core.TransactionType
	Amount   decimal.Decimal
	Category core.Category
	Title    string
	Date     core.Date
}

// Snapshot is one emission of the live view. Version increases by one on
// every emission.
type Snapshot struct {
	Version      uint64
	Transactions []core.Transaction
}

type pendingAdd struct {
	tx    core.Transaction
	acked bool
	// settled is closed once the store answered the append; err holds its
	// failure, if any.
	settled chan struct{}
	err     error
}

type pendingRemoval struct {
	acked bool
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the source of CreatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides how transaction ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// WithLogger sets the logger used for feed failures.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// Repository is the single source of truth for one signed-in user. The
// view is the last confirmed store snapshot with local pending adds and
// removals applied on top.
type Repository struct {
	store  ledger.Store
	userID string
	now    func() time.Time
	newID  func() string
	logger *log.Logger

	mu        sync.Mutex
	confirmed []core.Transaction
	adds      map[string]*pendingAdd
	removals  map[string]*pendingRemoval
	view      []core.Transaction
	version   uint64
	out       chan Snapshot
	unsub     ledger.Unsubscribe
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a repository for userID. Call Subscribe to start the feed.
func New(store ledger.Store, userID string, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		userID:   userID,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Default().WithComponent(log.ComponentTransactions),
		adds:     make(map[string]*pendingAdd),
		removals: make(map[string]*pendingRemoval),
		view:     []core.Transaction{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserID returns the id every query and write of r is scoped to.
func (r *Repository) UserID() string {
	return r.userID
}

// Subscribe opens the store subscription and returns a channel of full
// snapshots. The channel holds at most one pending snapshot and a slow
// reader only sees the newest. It is closed when ctx is done or Close is
// called. Only one subscription per repository is allowed.
func (r *Repository) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if r.out != nil {
		r.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	out := make(chan Snapshot, 1)
	r.out = out
	r.mu.Unlock()

	unsub, err := r.store.Subscribe(ctx, r.userID, r.applySnapshot)
	if err != nil {
		r.mu.Lock()
		if r.out == out {
			r.out = nil
		}
		r.mu.Unlock()
		var se *core.SubscriptionError
		if !errors.As(err, &se) {
			err = &core.SubscriptionError{UserID: r.userID, Err: err}
		}
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsub()
		return out, nil
	}
	r.unsub = unsub
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-r.done:
		}
	}()

	r.logger.Debug("Ledger subscription opened", log.FieldUserID, r.userID)
	return out, nil
}

// applySnapshot is the store callback. It never blocks on the reader.
func (r *Repository) applySnapshot(txs []core.Transaction, err error) {
	if err != nil {
		r.logger.Warn("Ledger feed failed, keeping last snapshot",
			log.FieldUserID, r.userID,
			log.FieldError, err)
		return
	}

	present := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		present[tx.ID] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.confirmed = txs
	for id, p := range r.adds {
		if _, ok := present[id]; ok || p.acked {
			delete(r.adds, id)
		}
	}
	for id, p := range r.removals {
		if _, ok := present[id]; !ok || p.acked {
			delete(r.removals, id)
		}
	}
	r.rebuildLocked()
}

// rebuildLocked recomputes the view and emits it. r.mu must be held.
func (r *Repository) rebuildLocked() {
	view := make([]core.Transaction, 0, len(r.confirmed)+len(r.adds))
	seen := make(map[string]struct{}, len(r.confirmed))
	for _, tx := range r.confirmed {
		seen[tx.ID] = struct{}{}
		if _, hidden := r.removals[tx.ID]; hidden {
			continue
		}
		tx.Visibility = core.Confirmed
		view = append(view, tx)
	}
	for id, p := range r.adds {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, hidden := r.removals[id]; hidden {
			continue
		}
		tx := p.tx
		tx.Visibility = core.PendingLocal
		view = append(view, tx)
	}
	core.SortSnapshot(view)

	r.view = view
	r.version++

	if r.out == nil {
		return
	}
	snap := Snapshot{Version: r.version, Transactions: append([]core.Transaction(nil), view...)}
	select {
	case r.out <- snap:
	default:
		// Replace the unread snapshot with the newer one
		select {
		case <-r.out:
		default:
		}
		r.out <- snap
	}
}

// Add validates d, shows it immediately as a pending entry and appends it
// to the store. It returns once the store acknowledged the write. Invalid
// input fails with a ValidationError before the store is touched; a
// rejected write fails with a StoreError and the pending entry is dropped.
func (r *Repository) Add(ctx context.Context, d Draft) (core.Transaction, error) {
	tx := core.Transaction{
		ID:         r.newID(),
		Type:       d.Type,
		Amount:     d.Amount,
		Category:   d.Category,
		Title:      SanitizeTitle(d.Title),
		Date:       d.Date,
		CreatedAt:  r.now(),
		UserID:     r.userID,
		Visibility: core.PendingLocal,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.Transaction{}, ErrClosed
	}
	p := &pendingAdd{tx: tx, settled: make(chan struct{})}
	r.adds[tx.ID] = p
	r.rebuildLocked()
	r.mu.Unlock()

	id, err := r.store.Append(ctx, ledger.RecordOf(tx))
	if err != nil {
		r.mu.Lock()
		p.err = err
		close(p.settled)
		if _, ok := r.adds[tx.ID]; ok {
			delete(r.adds, tx.ID)
			if !r.closed {
				r.rebuildLocked()
			}
		}
		r.mu.Unlock()

		r.logger.Error("Failed to append transaction",
			log.NewFields().
				WithUser(r.userID).
				WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), string(tx.Category)).
				WithError(err).
				ToSlice()...)
		return core.Transaction{}, asStoreError("append", err)
	}

	r.mu.Lock()
	p.acked = true
	close(p.settled)
	r.mu.Unlock()

	tx.ID = id
	tx.Visibility = core.Confirmed
	r.logger.Info("Transaction added",
		log.NewFields().
			WithUser(r.userID).
			WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), string(tx.Category)).
			ToSlice()...)
	return tx, nil
}

// Remove hides id immediately and deletes it from the store. Removing an
// id that is not in the current view is a no-op. A pending add is deleted
// once its append settles; if the append fails there is nothing to delete.
// On store failure the entry reappears and a StoreError is returned.
func (r *Repository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if !r.inViewLocked(id) {
		r.mu.Unlock()
		return nil
	}
	var pending *pendingAdd
	if p, ok := r.adds[id]; ok && !p.acked {
		pending = p
	}
	r.removals[id] = &pendingRemoval{}
	r.rebuildLocked()
	r.mu.Unlock()

	if pending != nil {
		select {
		case <-pending.settled:
		case <-ctx.Done():
			r.restoreRemoval(id)
			return asStoreError("delete", ctx.Err())
		}
		if pending.err != nil {
			r.restoreRemoval(id)
			r.logger.Info("Removed transaction was never stored", log.FieldUserID, r.userID, log.FieldTransactionID, id)
			return nil
		}
	}

	if err := r.store.Delete(ctx, r.userID, id); err != nil {
		r.restoreRemoval(id)

		r.logger.Error("Failed to delete transaction",
			log.FieldUserID, r.userID,
			log.FieldTransactionID, id,
			log.FieldError, err)
		return asStoreError("delete", err)
	}

	r.mu.Lock()
	if p, ok := r.removals[id]; ok {
		p.acked = true
	}
	r.mu.Unlock()

	r.logger.Info("Transaction removed", log.FieldUserID, r.userID, log.FieldTransactionID, id)
	return nil
}

// restoreRemoval drops the pending removal of id and re-emits the view.
func (r *Repository) restoreRemoval(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.removals[id]; ok {
		delete(r.removals, id)
		if !r.closed {
			r.rebuildLocked()
		}
	}
}

func (r *Repository) inViewLocked(id string) bool {
	for _, tx := range r.view {
		if tx.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current view, most recent first.
func (r *Repository) Snapshot() []core.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Transaction{}, r.view...)
}

// Version returns the version of the current view.
func (r *Repository) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Stats totals the current view.
func (r *Repository) Stats() analytics.Stats {
	return analytics.Totals(r.Snapshot())
}

// Recent returns the n most recent transactions of the current view.
func (r *Repository) Recent(n int) []core.Transaction {
	return analytics.Recent(r.Snapshot(), n)
}

// Close releases the store subscription and closes the snapshot channel.
// It is safe to call more than once.
func (r *Repository) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		if r.out != nil {
			close(r.out)
		}
		unsub := r.unsub
		r.unsub = nil
		r.mu.Unlock()

		close(r.done)
		if unsub != nil {
			unsub()
		}
		r.logger.Debug("Ledger subscription released", log.FieldUserID, r.userID)
	})
}

// SanitizeTitle strips markup and surrounding whitespace from a title.
func SanitizeTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

func asStoreError(op string, err error) error {
	var se *core.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &core.StoreError{Op: op, Err: err}
}
