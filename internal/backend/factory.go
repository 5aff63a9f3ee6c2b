package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/ledger/sqlite"
	"fintrack/internal/ledger/supabase"
	"fintrack/internal/log"
)

const publishTimeout = 10 * time.Second

// Open creates the store described by cfg. The change bus is optional: a
// broker that cannot be reached is logged and the backend runs without it.
func Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.Default().WithComponent(log.ComponentBackend)

	var bus *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change bus", log.FieldError, err)
		} else {
			bus = c
			logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	res, err := openStore(cfg, publisher(bus))
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}
		return nil, err
	}
	res.Bus = bus

	storeCleanup := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if storeCleanup != nil {
			errs = append(errs, storeCleanup())
		}
		if bus != nil {
			errs = append(errs, bus.Close())
		}
		return errors.Join(errs...)
	}

	storeReady := res.Ready
	res.Ready = func(ctx context.Context) error {
		if storeReady != nil {
			if err := storeReady(ctx); err != nil {
				return err
			}
		}
		if bus != nil {
			if err := bus.Ping(); err != nil {
				return fmt.Errorf("change bus: %w", err)
			}
		}
		return nil
	}

	logger.InfoContext(ctx, "Initialized backend",
		"type", cfg.Type.String(),
		"amqp_enabled", bus != nil)
	return res, nil
}

func openStore(cfg Config, onChange ledger.ChangeSink) (*Result, error) {
	switch cfg.Type {
	case MemoryBackend:
		return &Result{Store: memory.New()}, nil

	case SQLiteBackend:
		s, err := sqlite.Open(cfg.SQLiteDBPath, sqlite.Options{OnChange: onChange})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return &Result{
			Store:     s,
			Refresher: s,
			Ready:     s.Ping,
			Cleanup: func() error {
				_ = s.Stop(context.Background())
				return s.Close()
			},
		}, nil

	case SupabaseBackend:
		s, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey, onChange)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Supabase store: %w", err)
		}
		return &Result{
			Store:     s,
			Refresher: s,
			Cleanup: func() error {
				return s.Stop(context.Background())
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
}

// publisher turns committed writes into change events. Publishing runs in
// the background so a slow broker never holds up a write.
func publisher(bus *amqp.Client) ledger.ChangeSink {
	if bus == nil {
		return nil
	}
	logger := log.Default().WithComponent(log.ComponentAMQP)
	return func(ctx context.Context, c ledger.Change) {
		msg := amqp.NewLedgerChangedMessage(c.UserID, string(c.Op), c.TransactionID)
		go func() {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			defer cancel()
			if err := bus.PublishLedgerChanged(pctx, msg); err != nil {
				logger.WarnContext(pctx, "Failed to publish ledger change",
					log.FieldUserID, c.UserID,
					log.FieldTransactionID, c.TransactionID,
					log.FieldError, err)
			}
		}()
	}
}

// Follow applies change events from other processes until ctx is done. It
// returns immediately when the backend has no bus or nothing to refresh.
func (r *Result) Follow(ctx context.Context) error {
	if r.Bus == nil || r.Refresher == nil {
		return nil
	}
	return r.Bus.ConsumeLedgerChanges(ctx, func(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
		r.Refresher.Refresh(ctx, msg.UserID)
		return nil
	})
}
