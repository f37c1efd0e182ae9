package models

import (
	"math"
	"strconv"
	"strings"
)

// RawSheet is an untyped cell grid read from one workbook sheet.
// Row 0 is a title artifact, row 1 holds partial labels for the last two
// columns and row 2 holds the real column names.
// Used only during ingestion.
type RawSheet struct {
	Name string
	Rows [][]string
}

// Width returns the number of columns of the widest row
func (s *RawSheet) Width() int {
	width := 0
	for _, row := range s.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Cell returns the cell at row/col, or "" if the row is shorter
func (s *RawSheet) Cell(row, col int) string {
	if row < 0 || row >= len(s.Rows) {
		return ""
	}
	r := s.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// CanonicalIndex normalizes an index number for storage and comparison.
// Surrounding whitespace is removed and float renderings of whole numbers
// ("1234.0", "1.234E+03") collapse to "1234". Other text, including leading
// zeros, is kept as is.
func CanonicalIndex(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || !strings.ContainsAny(s, ".eE") {
		return s
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if f != math.Trunc(f) || math.Abs(f) >= 1e15 {
		return s
	}
	return strconv.FormatInt(int64(f), 10)
}
