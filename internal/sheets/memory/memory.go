// Package memory is an in-process Sheet, used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/sheets"
)

type Sheet struct {
	mu   sync.Mutex
	rows [][]string
}

func New() *Sheet {
	return &Sheet{}
}

var _ sheets.Sheet = (*Sheet)(nil)

func (s *Sheet) ReadRows(_ context.Context) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.Row, 0, len(s.rows))
	for i, r := range s.rows {
		out = append(out, sheets.Row{Number: i + 1, Values: append([]string(nil), r...)})
	}
	return out, nil
}

func (s *Sheet) AppendRows(_ context.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows = append(s.rows, append([]string(nil), r...))
	}
	return nil
}

func (s *Sheet) ClearRow(_ context.Context, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if number < 1 || number > len(s.rows) {
		return fmt.Errorf("row %d out of range", number)
	}
	s.rows[number-1] = make([]string, len(s.rows[number-1]))
	return nil
}

// Live returns the non-blank rows without the header.
func (s *Sheet) Live() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]string
	for i, r := range s.rows {
		if i == 0 || blank(r) {
			continue
		}
		out = append(out, append([]string(nil), r...))
	}
	return out
}

func blank(r []string) bool {
	for _, v := range r {
		if v != "" {
			return false
		}
	}
	return true
}
