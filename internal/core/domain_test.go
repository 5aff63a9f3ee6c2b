package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		ID:       "t1",
		Type:     Expense,
		Amount:   decimal.RequireFromString("12.50"),
		Category: Food,
		Title:    "Groceries",
		Date:     NewDate(2025, time.March, 4),
		UserID:   "u1",
	}
}

func TestDateOfTruncatesToCivilDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	d := DateOf(time.Date(2025, 1, 1, 23, 30, 0, 0, loc))
	if d.String() != "2025-01-01" {
		t.Fatalf("expected 2025-01-01, got %s", d)
	}
	if d.Location() != time.UTC || d.Hour() != 0 {
		t.Fatalf("expected UTC midnight, got %v", d.Time)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-02-28 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d != NewDate(2025, time.February, 28) {
		t.Fatalf("unexpected date %v", d)
	}
	if d.AddDays(1) != NewDate(2025, time.March, 1) {
		t.Fatalf("AddDays crossed month incorrectly: %v", d.AddDays(1))
	}
	if _, err := ParseDate("28/02/2025"); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}

func TestTransactionSigned(t *testing.T) {
	tx := validTransaction()
	if !tx.Signed().Equal(decimal.RequireFromString("-12.50")) {
		t.Fatalf("expense should contribute negatively, got %s", tx.Signed())
	}
	tx.Type = Income
	if !tx.Signed().Equal(tx.Amount) {
		t.Fatalf("income should contribute positively, got %s", tx.Signed())
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		field  string
		want   error
	}{
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, "type", ErrInvalidType},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, "amount", ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, "amount", ErrInvalidAmount},
		{"unknown category", func(tx *Transaction) { tx.Category = "Crypto" }, "category", ErrUnknownCategory},
		{"blank title", func(tx *Transaction) { tx.Title = "   " }, "title", ErrEmptyTitle},
		{"title too long", func(tx *Transaction) { tx.Title = strings.Repeat("a", 201) }, "title", ErrTitleTooLong},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, "date", ErrInvalidDate},
		{"missing user", func(tx *Transaction) { tx.UserID = "" }, "user_id", ErrMissingUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			err := tx.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTitleLengthCountsCharacters(t *testing.T) {
	tx := validTransaction()
	// 200 three-byte characters
	tx.Title = strings.Repeat("€", 200)
	if err := tx.Validate(); err != nil {
		t.Fatalf("200 characters should be accepted, got %v", err)
	}
	tx.Title += "€"
	if err := tx.Validate(); !errors.Is(err, ErrTitleTooLong) {
		t.Fatalf("expected ErrTitleTooLong, got %v", err)
	}
}

func TestWellFormed(t *testing.T) {
	tx := validTransaction()
	if !tx.WellFormed() {
		t.Fatalf("valid transaction should be well formed")
	}
	tx.Amount = decimal.Zero
	if !tx.WellFormed() {
		t.Fatalf("zero amount is still aggregatable")
	}
	tx.Amount = decimal.NewFromInt(-1)
	if tx.WellFormed() {
		t.Fatalf("negative amount must not be aggregated")
	}
}

func TestCategoryCatalogue(t *testing.T) {
	cats := Categories()
	if len(cats) != 9 {
		t.Fatalf("expected 9 categories, got %d", len(cats))
	}
	info, ok := Salary.Info()
	if !ok || info.DefaultType != Income {
		t.Fatalf("salary should default to income, got %+v", info)
	}
	if Category("Crypto").Known() {
		t.Fatalf("unexpected known category")
	}
	cats[0].Name = "mutated"
	if Categories()[0].Name != Salary {
		t.Fatalf("Categories must return a copy")
	}
}

func TestSortSnapshot(t *testing.T) {
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{ID: "a", Date: NewDate(2025, 1, 1), CreatedAt: base},
		{ID: "b", Date: NewDate(2025, 1, 3), CreatedAt: base},
		{ID: "c", Date: NewDate(2025, 1, 3), CreatedAt: base.Add(time.Hour)},
		{ID: "d", Date: NewDate(2025, 1, 3), CreatedAt: base},
	}
	SortSnapshot(txs)
	got := ""
	for _, tx := range txs {
		got += tx.ID
	}
	if got != "cbda" {
		t.Fatalf("unexpected order %q", got)
	}
}
