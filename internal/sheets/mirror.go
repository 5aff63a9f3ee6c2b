// Package sheets mirrors each user's ledger into a spreadsheet, one row
// per transaction.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// SyncResult reports what one Sync changed.
type SyncResult struct {
	Appended int
	Cleared  int
}

// Mirror reconciles a Sheet with ledger snapshots.
type Mirror struct {
	sheet  Sheet
	logger *log.Logger
}

func NewMirror(sheet Sheet) *Mirror {
	return &Mirror{
		sheet:  sheet,
		logger: log.Default().WithComponent(log.ComponentSheets),
	}
}

// Sync makes userID's rows match txs: rows whose id is gone (or repeated)
// are cleared and missing transactions are appended oldest first. Rows of
// other users are never touched. Running it twice is a no-op.
func (m *Mirror) Sync(ctx context.Context, userID string, txs []core.Transaction) (SyncResult, error) {
	var res SyncResult

	rows, err := m.sheet.ReadRows(ctx)
	if err != nil {
		return res, fmt.Errorf("read mirror rows: %w", err)
	}

	if !hasHeader(rows) {
		if err := m.sheet.AppendRows(ctx, [][]string{Header}); err != nil {
			return res, fmt.Errorf("write mirror header: %w", err)
		}
	}

	want := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		want[tx.ID] = struct{}{}
	}

	present := make(map[string]struct{})
	for _, row := range rows {
		if row.Blank() || row.Get(ColUserID) != userID {
			continue
		}
		id := row.Get(ColID)
		_, keep := want[id]
		_, dup := present[id]
		if keep && !dup {
			present[id] = struct{}{}
			continue
		}
		if err := m.sheet.ClearRow(ctx, row.Number); err != nil {
			return res, fmt.Errorf("clear mirror row %d: %w", row.Number, err)
		}
		res.Cleared++
	}

	var missing [][]string
	// Snapshots are newest first; the sheet reads oldest first
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if _, ok := present[tx.ID]; ok {
			continue
		}
		missing = append(missing, RowOf(tx))
	}
	if len(missing) > 0 {
		if err := m.sheet.AppendRows(ctx, missing); err != nil {
			return res, fmt.Errorf("append mirror rows: %w", err)
		}
		res.Appended = len(missing)
	}

	if res.Appended > 0 || res.Cleared > 0 {
		m.logger.InfoContext(ctx, "Mirror synchronized",
			log.FieldUserID, userID,
			"appended", res.Appended,
			"cleared", res.Cleared)
	}
	return res, nil
}

// Users returns the distinct user ids present in the sheet, in row order.
func (m *Mirror) Users(ctx context.Context) ([]string, error) {
	rows, err := m.sheet.ReadRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mirror rows: %w", err)
	}
	seen := make(map[string]struct{})
	var users []string
	for i, row := range rows {
		id := row.Get(ColUserID)
		if row.Blank() || id == "" || (i == 0 && strings.EqualFold(id, Header[ColUserID])) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users, nil
}

// RowOf renders tx in Header order.
func RowOf(tx core.Transaction) []string {
	return []string{
		tx.ID,
		tx.Date.String(),
		string(tx.Type),
		string(tx.Category),
		tx.Title,
		tx.Amount.StringFixed(2),
		tx.UserID,
	}
}

func hasHeader(rows []Row) bool {
	for _, row := range rows {
		if row.Blank() {
			continue
		}
		return strings.EqualFold(row.Get(ColID), Header[ColID]) &&
			strings.EqualFold(row.Get(ColUserID), Header[ColUserID])
	}
	return false
}
