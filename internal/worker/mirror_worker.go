// Package worker drives the spreadsheet mirror from ledger change events.
package worker

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
)

// MirrorWorker reloads a user's ledger on every change event and brings
// the user's mirror rows in line with it.
type MirrorWorker struct {
	store  ledger.Store
	mirror *sheets.Mirror
	logger *log.Logger
}

func NewMirrorWorker(store ledger.Store, mirror *sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		store:  store,
		mirror: mirror,
		logger: log.Default().WithComponent(log.ComponentMirror),
	}
}

// HandleLedgerChanged processes one change message. The message only
// names the user; the ledger itself is reloaded so that reordered or
// duplicated messages converge on the same sheet.
func (w *MirrorWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.DebugContext(ctx, "Processing ledger change",
		log.FieldUserID, msg.UserID,
		log.FieldOperation, msg.Op,
		log.FieldTransactionID, msg.TransactionID)

	if err := w.SyncUser(ctx, msg.UserID); err != nil {
		w.logger.ErrorContext(ctx, "Mirror sync failed",
			log.FieldUserID, msg.UserID,
			log.FieldError, err)
		return err
	}
	return nil
}

// SyncUser mirrors userID's current ledger.
func (w *MirrorWorker) SyncUser(ctx context.Context, userID string) error {
	txs, err := ledger.Load(ctx, w.store, userID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if _, err := w.mirror.Sync(ctx, userID, txs); err != nil {
		return fmt.Errorf("sync mirror: %w", err)
	}
	return nil
}

// StartupSyncCheck resynchronizes every user already present in the sheet
// plus extra, recovering from events missed while the worker was down.
// Failures are logged and counted rather than aborting the pass.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context, extra ...string) error {
	users, err := w.mirror.Users(ctx)
	if err != nil {
		return fmt.Errorf("list mirrored users: %w", err)
	}
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		seen[u] = struct{}{}
	}
	for _, u := range extra {
		if _, ok := seen[u]; !ok && u != "" {
			seen[u] = struct{}{}
			users = append(users, u)
		}
	}

	if len(users) == 0 {
		w.logger.InfoContext(ctx, "No mirrored users found on startup")
		return nil
	}

	successCount, errorCount := 0, 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.SyncUser(ctx, u); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync user during startup",
				log.FieldUserID, u,
				log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", len(users),
		"synced", successCount,
		"errors", errorCount)
	return nil
}
