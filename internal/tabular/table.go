// Package tabular holds the in-memory table model and the CSV/XLSX
// load and save mechanics around it.
package tabular

import (
	"github.com/rotisserie/eris"
)

// Table is one loaded file: ordered column names and ordered rows of
// string cells. Every row has exactly len(Columns) cells, in column order.
// A Table is never mutated after construction; enrichment produces a new
// Table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// New validates columns and rows and returns a Table. Column names must be
// unique and every row must match the column count.
func New(name string, columns []string, rows [][]string) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			return nil, eris.Errorf("tabular: duplicate column %q in %s", col, name)
		}
		seen[col] = struct{}{}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, eris.Errorf("tabular: row %d of %s has %d cells, want %d", i, name, len(row), len(columns))
		}
	}
	return &Table{Name: name, Columns: columns, Rows: rows}, nil
}

// ColumnIndex returns the position of the named column, or -1 if the table
// has no such column.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// Cell returns the value at (row, column index).
func (t *Table) Cell(row, col int) string {
	return t.Rows[row][col]
}

// WithColumns returns a new Table with extra columns appended on the right.
// extra[i] must hold one cell per existing row, in row order. The receiver
// is left untouched.
func (t *Table) WithColumns(names []string, extra [][]string) (*Table, error) {
	if len(names) != len(extra) {
		return nil, eris.Errorf("tabular: %d column names for %d columns", len(names), len(extra))
	}
	for i, col := range extra {
		if len(col) != len(t.Rows) {
			return nil, eris.Errorf("tabular: appended column %q has %d cells, want %d", names[i], len(col), len(t.Rows))
		}
	}

	columns := make([]string, 0, len(t.Columns)+len(names))
	columns = append(columns, t.Columns...)
	columns = append(columns, names...)

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]string, 0, len(columns))
		cells = append(cells, row...)
		for _, col := range extra {
			cells = append(cells, col[r])
		}
		rows[r] = cells
	}

	return New(t.Name, columns, rows)
}
