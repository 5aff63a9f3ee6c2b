package sheets

import "context"

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Type", "Category", "Title", "Amount", "UserID"}

// Column positions in Header
const (
	ColID = iota
	ColDate
	ColType
	ColCategory
	ColTitle
	ColAmount
	ColUserID
)

// Row is one sheet row. Number is the 1-based row index in the sheet.
type Row struct {
	Number int
	Values []string
}

// Blank reports whether every cell of r is empty.
func (r Row) Blank() bool {
	for _, v := range r.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// Get returns the cell at col, or "" when the row is shorter.
func (r Row) Get(col int) string {
	if col < 0 || col >= len(r.Values) {
		return ""
	}
	return r.Values[col]
}

// Sheet is the tabular surface the mirror writes to.
type Sheet interface {
	// ReadRows returns every row of the sheet, header included.
	ReadRows(ctx context.Context) ([]Row, error)
	// AppendRows writes rows after the last non-empty row.
	AppendRows(ctx context.Context, rows [][]string) error
	// ClearRow blanks the row with the given number.
	ClearRow(ctx context.Context, number int) error
}
