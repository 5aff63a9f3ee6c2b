// Package memory is an in-process ledger store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

type Store struct {
	mu    sync.Mutex
	users map[string][]ledger.Record
	hub   *ledger.Hub
}

func New() *Store {
	s := &Store{users: make(map[string][]ledger.Record)}
	s.hub = ledger.NewHub(s.load)
	return s
}

// Seed stores records without notifying subscribers.
func (s *Store) Seed(records ...ledger.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.users[r.UserID] = append(s.users[r.UserID], r)
	}
}

func (s *Store) Subscribe(ctx context.Context, userID string, fn ledger.ChangeFunc) (ledger.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, userID, fn)
}

// Append stores the record and pushes the new state to the user's subscribers.
func (s *Store) Append(ctx context.Context, r ledger.Record) (string, error) {
	if r.UserID == "" {
		return "", &core.StoreError{Op: "append", Err: core.ErrMissingUser}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	for _, existing := range s.users[r.UserID] {
		if existing.ID == r.ID {
			s.mu.Unlock()
			return "", &core.StoreError{Op: "append", Err: fmt.Errorf("%s: %w", r.ID, ledger.ErrDuplicateID)}
		}
	}
	s.users[r.UserID] = append(s.users[r.UserID], r)
	s.mu.Unlock()

	s.hub.Notify(ctx, r.UserID)
	return r.ID, nil
}

// Delete removes the record if present. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	records := s.users[userID]
	removed := false
	for i, r := range records {
		if r.ID == id {
			s.users[userID] = append(records[:i:i], records[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.hub.Notify(ctx, userID)
	}
	return nil
}

// Records returns a copy of the user's stored records in insertion order.
func (s *Store) Records(userID string) []ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Record(nil), s.users[userID]...)
}

func (s *Store) load(_ context.Context, userID string) ([]core.Transaction, error) {
	return ledger.Snapshot(s.Records(userID)), nil
}
