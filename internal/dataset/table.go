// Package dataset provides the in-memory tabular model shared by the
// pipeline and its adapters. A Table is a CSV-shaped value: an ordered
// header plus string rows, with no typing beyond what callers parse out.
package dataset

import "strings"

// rowSep joins cells into a duplicate-detection key. The unit separator
// cannot appear in CSV field content that survived parsing.
const rowSep = "\x1f"

// Table holds a header and its rows. Rows always have exactly
// len(Columns) cells; constructors enforce the width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New builds a Table from a header and raw rows. Short rows are padded
// with empty cells and long rows truncated, so downstream code can index
// by column position without bounds checks.
func New(columns []string, rows [][]string) *Table {
	t := &Table{Columns: columns, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		t.AppendRow(row)
	}
	return t
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the value at row i for the named column, or "" when the
// row or column does not exist.
func (t *Table) Cell(i int, name string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	j, ok := t.ColumnIndex(name)
	if !ok {
		return ""
	}
	return t.Rows[i][j]
}

// AppendRow adds a row, normalizing its width to the header.
func (t *Table) AppendRow(row []string) {
	width := len(t.Columns)
	switch {
	case len(row) < width:
		padded := make([]string, width)
		copy(padded, row)
		row = padded
	case len(row) > width:
		row = row[:width]
	}
	t.Rows = append(t.Rows, row)
}

// EnsureColumn returns the index of the named column, appending a new
// empty column when absent. An existing column keeps its position, so
// writing through the returned index overwrites values in place; a new
// column lands after all current ones.
func (t *Table) EnsureColumn(name string) int {
	if i, ok := t.ColumnIndex(name); ok {
		return i
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Columns) - 1
}

// Dedup removes rows whose cells all equal an earlier row's, keeping the
// first occurrence and preserving order. Returns the number removed.
func (t *Table) Dedup() int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	removed := 0
	for _, row := range t.Rows {
		key := strings.Join(row, rowSep)
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	t.Rows = kept
	return removed
}

// Clone returns a deep copy sharing no backing arrays with the original.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}
