// Package ledger defines the contract of the per-user transaction store and
// the subscriber hub its implementations share.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// ErrDuplicateID is returned by Append when the id already exists for the user.
var ErrDuplicateID = errors.New("transaction id already exists")

type (
	// ChangeFunc receives the full current state of a user's ledger. A
	// non-nil err reports a feed failure, in which case txs is nil.
	ChangeFunc func(txs []core.Transaction, err error)

	// Unsubscribe releases a subscription. It is safe to call more than once.
	Unsubscribe func()

	// Store is the external document collection holding every user's
	// transactions. Implementations scope every query by user id.
	Store interface {
		// Subscribe delivers the current state immediately and again after
		// every change until the returned Unsubscribe is called.
		Subscribe(ctx context.Context, userID string, fn ChangeFunc) (Unsubscribe, error)
		// Append persists r and returns its id. An empty r.ID is assigned by the store.
		Append(ctx context.Context, r Record) (id string, err error)
		// Delete removes the record. A missing id is not an error.
		Delete(ctx context.Context, userID, id string) error
	}
)

// Op names a committed write.
type Op string

const (
	OpAppend Op = "append"
	OpDelete Op = "delete"
)

// Change describes a committed write so other processes can refresh.
type Change struct {
	UserID        string
	Op            Op
	TransactionID string
}

// ChangeSink is told about every committed write. It must not block for long.
type ChangeSink func(ctx context.Context, c Change)

// Record is the persisted shape of a transaction.
type Record struct {
	ID        string               `json:"id"`
	Type      core.TransactionType `json:"type"`
	Amount    decimal.Decimal      `json:"amount"`
	Category  core.Category        `json:"category"`
	Title     string               `json:"title"`
	Date      string               `json:"date"`
	UserID    string               `json:"user_id"`
	CreatedAt time.Time            `json:"created_at"`
}

// RecordOf converts a transaction into its persisted shape.
func RecordOf(tx core.Transaction) Record {
	return Record{
		ID:        tx.ID,
		Type:      tx.Type,
		Amount:    tx.Amount,
		Category:  tx.Category,
		Title:     tx.Title,
		Date:      tx.Date.String(),
		UserID:    tx.UserID,
		CreatedAt: tx.CreatedAt.UTC(),
	}
}

// Transaction converts a stored record back into a confirmed transaction.
// An unparsable date yields a zero Date, which aggregation skips.
func (r Record) Transaction() core.Transaction {
	date, _ := core.ParseDate(r.Date)
	return core.Transaction{
		ID:         r.ID,
		Type:       r.Type,
		Amount:     r.Amount,
		Category:   r.Category,
		Title:      r.Title,
		Date:       date,
		CreatedAt:  r.CreatedAt,
		UserID:     r.UserID,
		Visibility: core.Confirmed,
	}
}

// Snapshot converts records into an ordered snapshot.
func Snapshot(records []Record) []core.Transaction {
	txs := make([]core.Transaction, 0, len(records))
	for _, r := range records {
		txs = append(txs, r.Transaction())
	}
	core.SortSnapshot(txs)
	return txs
}

// Load reads userID's current ledger once through a short-lived
// subscription.
func Load(ctx context.Context, s Store, userID string) ([]core.Transaction, error) {
	var (
		mu      sync.Mutex
		txs     []core.Transaction
		feedErr error
		got     bool
	)
	unsub, err := s.Subscribe(ctx, userID, func(snapshot []core.Transaction, err error) {
		mu.Lock()
		defer mu.Unlock()
		if got {
			return
		}
		got = true
		txs, feedErr = snapshot, err
	})
	if err != nil {
		return nil, err
	}
	unsub()

	mu.Lock()
	defer mu.Unlock()
	if feedErr != nil {
		return nil, &core.SubscriptionError{UserID: userID, Err: feedErr}
	}
	if !got {
		return nil, &core.SubscriptionError{UserID: userID, Err: errors.New("no initial state delivered")}
	}
	return txs, nil
}
