package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

func TestXLSX(t *testing.T) {
	txs := []core.Transaction{
		{
			ID:       "2",
			Type:     core.Expense,
			Amount:   decimal.RequireFromString("12.50"),
			Category: core.Food,
			Title:    "=SUM(A1:A9)",
			Date:     core.NewDate(2025, time.June, 2),
		},
		{
			ID:       "1",
			Type:     core.Income,
			Amount:   decimal.NewFromInt(1000),
			Category: core.Salary,
			Title:    "Pay",
			Date:     core.NewDate(2025, time.June, 1),
		},
	}

	var buf bytes.Buffer
	if err := XLSX(&buf, txs); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Date" || rows[0][5] != "Signed" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "2025-06-02" || rows[1][2] != "Food" || rows[1][5] != "-12.5" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	// Titles are stored as text, never as formulas
	if formula, _ := f.GetCellFormula(SheetName, "D2"); formula != "" {
		t.Fatalf("title stored as formula %q", formula)
	}
	if rows[2][3] != "Pay" || rows[2][4] != "1000" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}

func TestXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := XLSX(&buf, nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(SheetName)
	if len(rows) != 1 {
		t.Fatalf("expected only the header, got %v", rows)
	}
}
