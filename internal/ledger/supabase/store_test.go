package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// fakeTable mimics PostgREST's representation responses.
type fakeTable struct {
	mu      sync.Mutex
	rows    []ledger.Record
	failErr error
}

func (f *fakeTable) SelectByUser(userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	var out []ledger.Record
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return json.Marshal(out)
}

func (f *fakeTable) Insert(row any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	r := row.(ledger.Record)
	f.rows = append(f.rows, r)
	return json.Marshal([]ledger.Record{r})
}

func (f *fakeTable) DeleteByID(userID, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	var deleted []ledger.Record
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.UserID == userID && r.ID == id {
			deleted = append(deleted, r)
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	if deleted == nil {
		deleted = []ledger.Record{}
	}
	return json.Marshal(deleted)
}

func TestSupabaseStoreAppendDelete(t *testing.T) {
	table := &fakeTable{}
	var changes []ledger.Change
	s := NewWithTable(table, func(_ context.Context, c ledger.Change) { changes = append(changes, c) })
	ctx := context.Background()

	var last []core.Transaction
	unsub, err := s.Subscribe(ctx, "u1", func(txs []core.Transaction, err error) { last = txs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	id, err := s.Append(ctx, ledger.Record{UserID: "u1", Type: core.Expense, Category: core.Food, Title: "x", Date: "2025-01-01"})
	if err != nil || id == "" {
		t.Fatalf("append: id=%q err=%v", id, err)
	}
	if len(last) != 1 || last[0].ID != id {
		t.Fatalf("subscriber did not see append: %+v", last)
	}

	if err := s.Delete(ctx, "u1", "missing"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
	if err := s.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(last) != 0 {
		t.Fatalf("subscriber did not see delete: %+v", last)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes (unknown delete is silent), got %+v", changes)
	}
}

func TestSupabaseStoreWrapsFailures(t *testing.T) {
	boom := errors.New("permission denied")
	s := NewWithTable(&fakeTable{failErr: boom}, nil)

	_, err := s.Append(context.Background(), ledger.Record{UserID: "u1"})
	var se *core.StoreError
	if !errors.As(err, &se) || se.Op != "append" || !errors.Is(err, boom) {
		t.Fatalf("expected append StoreError, got %v", err)
	}
	if err := s.Delete(context.Background(), "u1", "x"); !errors.As(err, &se) || se.Op != "delete" {
		t.Fatalf("expected delete StoreError, got %v", err)
	}
	if _, err := s.Subscribe(context.Background(), "u1", func([]core.Transaction, error) {}); err == nil {
		t.Fatal("expected subscribe failure")
	}
}
