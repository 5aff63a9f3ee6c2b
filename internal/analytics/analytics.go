// Package analytics derives totals, category breakdowns and balance trends
// from a snapshot of transactions.
//
// Every function here is pure: the same snapshot and the same reference
// time always produce the same result. Callers pass "now" explicitly.
package analytics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// DefaultTrendWindow is the number of days before today covered by a trend.
const DefaultTrendWindow = 30

// DefaultRecentLimit is the number of rows shown in a dashboard's recent list.
const DefaultRecentLimit = 5

var hundred = decimal.NewFromInt(100)

// Stats holds running totals for a snapshot.
type Stats struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// TrendPoint is the cumulative balance at the end of a calendar day.
type TrendPoint struct {
	Date    core.Date
	Balance decimal.Decimal
}

// Query narrows a snapshot for list views.
type Query struct {
	Search   string
	Category core.Category
	Type     core.TransactionType
}

// Dashboard bundles everything a dashboard view renders.
type Dashboard struct {
	Stats       Stats
	SavingsRate int
	Categories  []core.CategoryAmount
	Trend       []TrendPoint
	Recent      []core.Transaction
}

// Totals sums income and expense. Balance is income minus expense.
func Totals(txs []core.Transaction) Stats {
	income, expense := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if !tx.WellFormed() {
			continue
		}
		switch tx.Type {
		case core.Income:
			income = income.Add(tx.Amount)
		case core.Expense:
			expense = expense.Add(tx.Amount)
		}
	}
	return Stats{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

// CategoryBreakdown groups expenses by category in order of first
// occurrence. Categories without expenses are omitted.
func CategoryBreakdown(txs []core.Transaction) []core.CategoryAmount {
	index := make(map[core.Category]int)
	var out []core.CategoryAmount
	total := decimal.Zero

	for _, tx := range txs {
		if !tx.WellFormed() || tx.Type != core.Expense {
			continue
		}
		total = total.Add(tx.Amount)
		if i, ok := index[tx.Category]; ok {
			out[i].Amount = out[i].Amount.Add(tx.Amount)
			continue
		}
		index[tx.Category] = len(out)
		out = append(out, core.CategoryAmount{Name: tx.Category, Amount: tx.Amount})
	}

	if total.IsPositive() {
		for i := range out {
			out[i].Share = int(out[i].Amount.Mul(hundred).Div(total).Round(0).IntPart())
		}
	}
	return out
}

// BalanceTrend returns window+1 points, one per day from today-window
// through today, where today is the civil date of now in now's location.
// Each point is the net balance of every transaction dated on or before
// that day. Transactions dated after today are ignored. A negative window
// falls back to DefaultTrendWindow.
func BalanceTrend(txs []core.Transaction, now time.Time, window int) []TrendPoint {
	if window < 0 {
		window = DefaultTrendWindow
	}
	today := core.DateOf(now)
	start := today.AddDays(-window)

	running := decimal.Zero
	daily := make(map[int64]decimal.Decimal)
	for _, tx := range txs {
		if !tx.WellFormed() {
			continue
		}
		day := core.DateOf(tx.Date.Time)
		switch {
		case day.Before(start.Time):
			running = running.Add(tx.Signed())
		case day.After(today.Time):
			// not reflected until the window reaches it
		default:
			daily[day.Unix()] = daily[day.Unix()].Add(tx.Signed())
		}
	}

	points := make([]TrendPoint, 0, window+1)
	for day := start; !day.After(today.Time); day = day.AddDays(1) {
		if delta, ok := daily[day.Unix()]; ok {
			running = running.Add(delta)
		}
		points = append(points, TrendPoint{Date: day, Balance: running})
	}
	return points
}

// SavingsRate is the share of income kept, as a whole percentage rounded
// half away from zero. It is 0 when there is no income.
func SavingsRate(s Stats) int {
	if !s.Income.IsPositive() {
		return 0
	}
	rate := s.Income.Sub(s.Expense).Div(s.Income).Mul(hundred)
	return int(rate.Round(0).IntPart())
}

// Recent returns the first n transactions of an ordered snapshot.
func Recent(txs []core.Transaction, n int) []core.Transaction {
	if n <= 0 {
		return []core.Transaction{}
	}
	if n > len(txs) {
		n = len(txs)
	}
	return append([]core.Transaction(nil), txs[:n]...)
}

// Filter keeps transactions whose title contains q.Search (case-insensitive)
// and that match q.Category and q.Type when set. Order is preserved.
func Filter(txs []core.Transaction, q Query) []core.Transaction {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if search != "" && !strings.Contains(strings.ToLower(tx.Title), search) {
			continue
		}
		if q.Category != "" && tx.Category != q.Category {
			continue
		}
		if q.Type != "" && tx.Type != q.Type {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Summarize computes a full dashboard for an ordered snapshot.
func Summarize(txs []core.Transaction, now time.Time, window int) Dashboard {
	stats := Totals(txs)
	return Dashboard{
		Stats:       stats,
		SavingsRate: SavingsRate(stats),
		Categories:  CategoryBreakdown(txs),
		Trend:       BalanceTrend(txs, now, window),
		Recent:      Recent(txs, DefaultRecentLimit),
	}
}
