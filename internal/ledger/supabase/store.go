// Package supabase keeps ledgers in a Supabase (PostgREST) table. Supabase
// realtime is not available to Go clients, so pushes are emulated by
// polling with change detection.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	supabasego "github.com/supabase-community/supabase-go"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const tableName = "transactions"

// Table is the subset of PostgREST operations the store needs.
type Table interface {
	SelectByUser(userID string) ([]byte, error)
	Insert(row any) ([]byte, error)
	DeleteByID(userID, id string) ([]byte, error)
}

type Store struct {
	table    Table
	hub      *ledger.Hub
	onChange ledger.ChangeSink
}

// New connects to the Supabase project at url with the given API key.
func New(url, key string, onChange ledger.ChangeSink) (*Store, error) {
	client, err := supabasego.NewClient(url, key, &supabasego.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return NewWithTable(&clientTable{client: client}, onChange), nil
}

// NewWithTable builds a store over an arbitrary table implementation.
func NewWithTable(t Table, onChange ledger.ChangeSink) *Store {
	s := &Store{table: t, onChange: onChange}
	s.hub = ledger.NewHub(s.load)
	return s
}

func (s *Store) Subscribe(ctx context.Context, userID string, fn ledger.ChangeFunc) (ledger.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, userID, fn)
}

// Refresh reloads userID's ledger and pushes it if it changed.
func (s *Store) Refresh(ctx context.Context, userID string) {
	s.hub.Refresh(ctx, userID)
}

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

	data, err := s.table.Insert(r)
	if err != nil {
		return "", &core.StoreError{Op: "append", Err: err}
	}

	var created []ledger.Record
	if err := json.Unmarshal(data, &created); err == nil && len(created) > 0 && created[0].ID != "" {
		r.ID = created[0].ID
	}

	slog.InfoContext(ctx, "Transaction saved to Supabase", "id", r.ID, "user_id", r.UserID)

	s.committed(ctx, ledger.Change{UserID: r.UserID, Op: ledger.OpAppend, TransactionID: r.ID})
	return r.ID, nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	data, err := s.table.DeleteByID(userID, id)
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}

	var deleted []ledger.Record
	if err := json.Unmarshal(data, &deleted); err == nil && len(deleted) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Transaction deleted from Supabase", "id", id, "user_id", userID)

	s.committed(ctx, ledger.Change{UserID: userID, Op: ledger.OpDelete, TransactionID: id})
	return nil
}

func (s *Store) committed(ctx context.Context, c ledger.Change) {
	s.hub.Notify(ctx, c.UserID)
	if s.onChange != nil {
		s.onChange(ctx, c)
	}
}

func (s *Store) load(_ context.Context, userID string) ([]core.Transaction, error) {
	data, err := s.table.SelectByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	var records []ledger.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}
	return ledger.Snapshot(records), nil
}

type clientTable struct {
	client *supabasego.Client
}

func (t *clientTable) SelectByUser(userID string) ([]byte, error) {
	data, _, err := t.client.From(tableName).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("date.desc", nil).
		Execute()
	return data, err
}

func (t *clientTable) Insert(row any) ([]byte, error) {
	data, _, err := t.client.From(tableName).Insert(row, false, "", "representation", "").Execute()
	return data, err
}

func (t *clientTable) DeleteByID(userID, id string) ([]byte, error) {
	data, _, err := t.client.From(tableName).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		Execute()
	return data, err
}
