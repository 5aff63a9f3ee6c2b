package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   Category
	Amount decimal.Decimal
	Share  int // percent of the aggregated total
}

// SortSnapshot orders transactions most recent date first, then by
// CreatedAt descending, then by ID so equal records order deterministically.
// The slice is sorted in place.
func SortSnapshot(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
