package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var refNow = time.Date(2025, time.June, 15, 18, 45, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tx(id string, typ core.TransactionType, amount string, cat core.Category, daysAgo int) core.Transaction {
	return core.Transaction{
		ID:        id,
		Type:      typ,
		Amount:    dec(amount),
		Category:  cat,
		Title:     "tx " + id,
		Date:      core.DateOf(refNow).AddDays(-daysAgo),
		CreatedAt: refNow,
		UserID:    "u1",
	}
}

func TestTotals(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, "1000", core.Salary, 1),
		tx("2", core.Expense, "200.10", core.Food, 1),
		tx("3", core.Expense, "0.20", core.Food, 2),
		tx("4", core.Income, "0.10", core.Freelance, 3),
	}
	s := Totals(txs)
	if !s.Income.Equal(dec("1000.10")) || !s.Expense.Equal(dec("200.30")) {
		t.Fatalf("unexpected totals %+v", s)
	}
	if !s.Balance.Equal(s.Income.Sub(s.Expense)) || !s.Balance.Equal(dec("799.80")) {
		t.Fatalf("balance must equal income - expense, got %s", s.Balance)
	}
}

func TestTotalsSkipsMalformed(t *testing.T) {
	bad := tx("x", "transfer", "50", core.Other, 0)
	neg := tx("y", core.Income, "-10", core.Other, 0)
	s := Totals([]core.Transaction{bad, neg, tx("1", core.Income, "5", core.Salary, 0)})
	if !s.Income.Equal(dec("5")) || !s.Expense.IsZero() {
		t.Fatalf("malformed records should be skipped, got %+v", s)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, "30", core.Food, 0),
		tx("2", core.Income, "500", core.Salary, 0),
		tx("3", core.Expense, "50", core.Housing, 0),
		tx("4", core.Expense, "20", core.Food, 0),
	}
	got := CategoryBreakdown(txs)
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %+v", got)
	}
	if got[0].Name != core.Food || !got[0].Amount.Equal(dec("50")) || got[0].Share != 50 {
		t.Fatalf("unexpected first entry %+v", got[0])
	}
	if got[1].Name != core.Housing || !got[1].Amount.Equal(dec("50")) {
		t.Fatalf("unexpected second entry %+v", got[1])
	}

	sum := decimal.Zero
	for _, c := range got {
		sum = sum.Add(c.Amount)
	}
	if !sum.Equal(Totals(txs).Expense) {
		t.Fatalf("breakdown sum %s != total expense %s", sum, Totals(txs).Expense)
	}
}

func TestCategoryBreakdownEmpty(t *testing.T) {
	got := CategoryBreakdown([]core.Transaction{tx("1", core.Income, "10", core.Salary, 0)})
	if len(got) != 0 {
		t.Fatalf("expected no categories, got %+v", got)
	}
}

func assertTrend(t *testing.T, got []TrendPoint, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i, w := range want {
		if !got[i].Balance.Equal(dec(w)) {
			t.Fatalf("point %d (%s): expected %s, got %s", i, got[i].Date, w, got[i].Balance)
		}
	}
}

func TestBalanceTrendEmpty(t *testing.T) {
	got := BalanceTrend(nil, refNow, 30)
	if len(got) != 31 {
		t.Fatalf("expected 31 points, got %d", len(got))
	}
	for _, p := range got {
		if !p.Balance.IsZero() {
			t.Fatalf("expected zero balance, got %s on %s", p.Balance, p.Date)
		}
	}
	if got[0].Date != core.NewDate(2025, time.May, 16) || got[30].Date != core.NewDate(2025, time.June, 15) {
		t.Fatalf("unexpected window bounds %s..%s", got[0].Date, got[30].Date)
	}
}

func TestBalanceTrendSeedsFromBeforeWindow(t *testing.T) {
	got := BalanceTrend([]core.Transaction{tx("1", core.Income, "1000", core.Salary, 40)}, refNow, 30)
	if len(got) != 31 {
		t.Fatalf("expected 31 points, got %d", len(got))
	}
	for _, p := range got {
		if !p.Balance.Equal(dec("1000")) {
			t.Fatalf("expected 1000 on %s, got %s", p.Date, p.Balance)
		}
	}
}

func TestBalanceTrendCumulative(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, "500", core.Salary, 2),
		tx("2", core.Expense, "200", core.Food, 2),
		tx("3", core.Expense, "100", core.Food, 1),
	}
	got := BalanceTrend(txs, refNow, 3)
	assertTrend(t, got, []string{"0", "300", "200", "200"})
}

func TestBalanceTrendIgnoresFuture(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, "100", core.Salary, 1),
		tx("2", core.Income, "900", core.Salary, -3),
	}
	got := BalanceTrend(txs, refNow, 2)
	assertTrend(t, got, []string{"0", "100", "100"})
	if got[len(got)-1].Date != core.DateOf(refNow) {
		t.Fatalf("last point must be today, got %s", got[len(got)-1].Date)
	}
}

func TestBalanceTrendUsesLocationOfNow(t *testing.T) {
	// 01:00 on June 16 in UTC+3 is still June 15 in UTC.
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2025, time.June, 16, 1, 0, 0, 0, loc)
	got := BalanceTrend(nil, now, 0)
	if len(got) != 1 || got[0].Date != core.NewDate(2025, time.June, 16) {
		t.Fatalf("expected single point on 2025-06-16, got %+v", got)
	}
}

func TestBalanceTrendNegativeWindowUsesDefault(t *testing.T) {
	if got := BalanceTrend(nil, refNow, -1); len(got) != DefaultTrendWindow+1 {
		t.Fatalf("expected default window, got %d points", len(got))
	}
}

func TestBalanceTrendIdempotentAndContinuous(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, "1200", core.Salary, 45),
		tx("2", core.Expense, "35.40", core.Food, 10),
		tx("3", core.Expense, "12", core.Transportation, 0),
		tx("4", core.Income, "80", core.Freelance, 5),
	}
	first := BalanceTrend(txs, refNow, 30)
	second := BalanceTrend(txs, refNow, 30)
	for i := range first {
		if first[i].Date != second[i].Date || !first[i].Balance.Equal(second[i].Balance) {
			t.Fatalf("trend not idempotent at %d", i)
		}
	}
	last := first[len(first)-1].Balance
	if !last.Equal(Totals(txs).Balance) {
		t.Fatalf("last point %s should equal balance %s", last, Totals(txs).Balance)
	}
}

func TestSavingsRate(t *testing.T) {
	cases := []struct {
		income, expense string
		want            int
	}{
		{"0", "0", 0},
		{"0", "50", 0},
		{"1000", "250", 75},
		{"200", "199", 1}, // 0.5 rounds away from zero
		{"3", "2", 33},
		{"100", "150", -50},
	}
	for _, tc := range cases {
		s := Stats{Income: dec(tc.income), Expense: dec(tc.expense)}
		if got := SavingsRate(s); got != tc.want {
			t.Fatalf("income=%s expense=%s: expected %d, got %d", tc.income, tc.expense, tc.want, got)
		}
	}
}

func TestRecent(t *testing.T) {
	txs := []core.Transaction{tx("1", core.Income, "1", core.Salary, 0), tx("2", core.Income, "1", core.Salary, 1)}
	if got := Recent(txs, 5); len(got) != 2 {
		t.Fatalf("expected all when fewer than n, got %d", len(got))
	}
	if got := Recent(txs, 1); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected recent %+v", got)
	}
	if got := Recent(txs, 0); len(got) != 0 {
		t.Fatalf("expected none for n=0, got %d", len(got))
	}
}

func TestFilter(t *testing.T) {
	a := tx("1", core.Expense, "10", core.Food, 0)
	a.Title = "Weekly Groceries"
	b := tx("2", core.Expense, "10", core.Shopping, 0)
	b.Title = "Shoes"
	c := tx("3", core.Income, "10", core.Salary, 0)
	c.Title = "Salary grocery store"
	txs := []core.Transaction{a, b, c}

	if got := Filter(txs, Query{Search: "GROCER"}); len(got) != 2 {
		t.Fatalf("expected 2 search hits, got %d", len(got))
	}
	if got := Filter(txs, Query{Search: "grocer", Type: core.Expense}); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected filtered result %+v", got)
	}
	if got := Filter(txs, Query{Category: core.Shopping}); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("unexpected category filter %+v", got)
	}
	if got := Filter(txs, Query{}); len(got) != 3 {
		t.Fatalf("empty query should keep everything")
	}
}

func TestSummarize(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Income, "1000", core.Salary, 3),
		tx("2", core.Expense, "400", core.Housing, 2),
	}
	d := Summarize(txs, refNow, 7)
	if d.SavingsRate != 60 || len(d.Trend) != 8 || len(d.Categories) != 1 || len(d.Recent) != 2 {
		t.Fatalf("unexpected dashboard %+v", d)
	}
}
