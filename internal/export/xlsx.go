// Package export renders a user's ledger as a downloadable workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

// SheetName is the worksheet holding the exported rows.
const SheetName = "Transactions"

// ContentType is the media type of an XLSX workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{"Date", "Type", "Category", "Title", "Amount", "Signed"}

// XLSX writes txs, in the given order, as a single-sheet workbook. Amounts
// are written as numbers so the workbook can total them; dates stay text.
func XLSX(w io.Writer, txs []core.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, tx := range txs {
		amount, _ := tx.Amount.Float64()
		signed, _ := tx.Signed().Float64()
		row := []any{
			tx.Date.String(),
			string(tx.Type),
			string(tx.Category),
			tx.Title,
			amount,
			signed,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	widths := map[string]float64{"A": 12, "B": 10, "C": 16, "D": 40, "E": 12, "F": 12}
	for col, width := range widths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
