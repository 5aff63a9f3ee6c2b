// Package backend builds the configured ledger store together with the
// change bus that keeps other processes in step with it.
package backend

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Refresher is implemented by stores whose state can change outside this
// process and must be reloaded on demand or on a timer.
type Refresher interface {
	Refresh(ctx context.Context, userID string)
	StartPolling(ctx context.Context, interval time.Duration) error
	Stop(ctx context.Context) error
}

// Result is an opened backend.
type Result struct {
	Store ledger.Store
	// Refresher is nil for stores that only change in-process.
	Refresher Refresher
	// Bus is nil when the change bus is disabled or unreachable.
	Bus     *amqp.Client
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	SQLiteDBPath string

	SupabaseURL string
	SupabaseKey string

	// Change bus, disabled when AMQPURL is empty. An empty AMQPQueue gives
	// this process its own exclusive queue.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type names a ledger store implementation.
type Type string

const (
	MemoryBackend   Type = "memory"
	SQLiteBackend   Type = "sqlite"
	SupabaseBackend Type = "supabase"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, SupabaseBackend:
		return true
	default:
		return false
	}
}
