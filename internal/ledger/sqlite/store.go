// Package sqlite persists ledgers in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

type Options struct {
	// OnChange is told about every committed write.
	OnChange ledger.ChangeSink
}

type Store struct {
	db       *sql.DB
	hub      *ledger.Hub
	onChange ledger.ChangeSink
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(dbPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Several processes may share the file; wait on locks instead of failing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, onChange: opts.OnChange}
	s.hub = ledger.NewHub(s.load)
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Subscribe(ctx context.Context, userID string, fn ledger.ChangeFunc) (ledger.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, userID, fn)
}

// Refresh reloads userID's ledger and pushes it to local subscribers if it
// changed. It is called for writes made by other processes.
func (s *Store) Refresh(ctx context.Context, userID string) {
	s.hub.Refresh(ctx, userID)
}

// StartPolling periodically refreshes every subscribed user.
func (s *Store) StartPolling(ctx context.Context, interval time.Duration) error {
	return s.hub.StartPolling(ctx, interval)
}

func (s *Store) Stop(ctx context.Context) error {
	return s.hub.Stop(ctx)
}

func (s *Store) Append(ctx context.Context, r ledger.Record) (string, error) {
	if r.UserID == "" {
		return "", &core.StoreError{Op: "append", Err: core.ErrMissingUser}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, id, type, amount, category, title, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.ID, string(r.Type), r.Amount.String(), string(r.Category), r.Title, r.Date,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			err = fmt.Errorf("%s: %w", r.ID, ledger.ErrDuplicateID)
		}
		return "", &core.StoreError{Op: "append", Err: err}
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", r.ID,
		"user_id", r.UserID,
		"type", r.Type,
		"amount", r.Amount.String(),
		"date", r.Date)

	s.committed(ctx, ledger.Change{UserID: r.UserID, Op: ledger.OpAppend, TransactionID: r.ID})
	return r.ID, nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	if n == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id, "user_id", userID)

	s.committed(ctx, ledger.Change{UserID: userID, Op: ledger.OpDelete, TransactionID: id})
	return nil
}

// Records returns the user's stored records, newest date first.
func (s *Store) Records(ctx context.Context, userID string) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, amount, category, title, date, created_at
		 FROM transactions WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var r ledger.Record
		var typ, amount, cat, createdAt string
		if err := rows.Scan(&r.ID, &typ, &amount, &cat, &r.Title, &r.Date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.UserID = userID
		r.Type = core.TransactionType(typ)
		r.Category = core.Category(cat)
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			slog.WarnContext(ctx, "Skipping transaction with malformed amount", "id", r.ID, "amount", amount)
			continue
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			slog.WarnContext(ctx, "Malformed created_at, using zero time", "id", r.ID, "created_at", createdAt)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (s *Store) committed(ctx context.Context, c ledger.Change) {
	s.hub.Notify(ctx, c.UserID)
	if s.onChange != nil {
		s.onChange(ctx, c)
	}
}

// load reads userID's ledger. The hub serializes loads per user.
func (s *Store) load(ctx context.Context, userID string) ([]core.Transaction, error) {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ledger.Snapshot(records), nil
}

func isPrimaryKeyViolation(err error) bool {
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
