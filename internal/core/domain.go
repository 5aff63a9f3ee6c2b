package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	// Confirmed marks a transaction delivered by an authoritative store snapshot.
	Confirmed Visibility = "confirmed"
	// PendingLocal marks an optimistic transaction not yet seen in a store snapshot.
	PendingLocal Visibility = "pending-local"
)

const maxTitleLength = 200

type (
	TransactionType string

	Visibility string

	// Date is a calendar day stored as UTC midnight. It carries no time of day.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID         string
		Type       TransactionType
		Amount     decimal.Decimal
		Category   Category
		Title      string
		Date       Date
		CreatedAt  time.Time
		UserID     string
		Visibility Visibility
	}
)

var (
	ErrInvalidAmount   = errors.New("amount must be a finite number greater than zero")
	ErrEmptyTitle      = errors.New("title cannot be empty")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidDate     = errors.New("date cannot be zero")
	ErrMissingUser     = errors.New("user id cannot be empty")
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the civil day of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Signed returns the contribution of t to a balance: +amount for income,
// -amount for expense.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Pending reports whether t is an optimistic local entry.
func (t Transaction) Pending() bool {
	return t.Visibility == PendingLocal
}

// Validate checks the fields a caller supplies when creating a transaction.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidType}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if !t.Category.Known() {
		return &ValidationError{Field: "category", Err: ErrUnknownCategory}
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return &ValidationError{Field: "title", Err: ErrTitleTooLong}
	}
	if err := t.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if strings.TrimSpace(t.UserID) == "" {
		return &ValidationError{Field: "user_id", Err: ErrMissingUser}
	}
	return nil
}

// WellFormed reports whether t can take part in aggregation. Records that
// fail it are skipped rather than aborting a computation.
func (t Transaction) WellFormed() bool {
	return t.Type.Valid() && !t.Amount.IsNegative() && !t.Date.IsZero()
}
