package fieldmap

import (
	"fmt"
	"strings"

	"github.com/sells-group/geomatch-cli/internal/tabular"
)

// FieldMap is the configuration for one loaded table. It is built
// incrementally by shell commands and read-only during fetch and match.
type FieldMap struct {
	table       *tabular.Table
	assignments map[Variable]string
	prefix      string
	output      []string
	compare     []string
}

// New returns an empty FieldMap bound to a table.
func New(t *tabular.Table) *FieldMap {
	return &FieldMap{
		table:       t,
		assignments: make(map[Variable]string),
	}
}

// Table returns the table this FieldMap configures.
func (f *FieldMap) Table() *tabular.Table {
	return f.table
}

// Set assigns a semantic variable to a column. The column must exist in the
// bound table.
func (f *FieldMap) Set(v Variable, column string) error {
	if _, err := ParseVariable(string(v)); err != nil {
		return err
	}
	if !f.table.HasColumn(column) {
		return &UnknownColumnError{Column: column, Table: f.table.Name}
	}
	f.assignments[v] = column
	return nil
}

// Get returns the column assigned to v. Reading never fails; an unassigned
// variable reports ok=false.
func (f *FieldMap) Get(v Variable) (column string, ok bool) {
	column, ok = f.assignments[v]
	return column, ok
}

// AddColumn adds a column to the output or compare set. Re-adding a column
// already in the set is a no-op.
func (f *FieldMap) AddColumn(kind ColumnKind, column string) error {
	if !f.table.HasColumn(column) {
		return &UnknownColumnError{Column: column, Table: f.table.Name}
	}
	switch kind {
	case KindOutput:
		f.output = appendUnique(f.output, column)
	case KindCompare:
		f.compare = appendUnique(f.compare, column)
	default:
		return &UnknownColumnKindError{Name: string(kind)}
	}
	return nil
}

// OutputColumns returns the output column names in the order added.
func (f *FieldMap) OutputColumns() []string {
	return f.output
}

// CompareColumns returns the compare column names in the order added.
func (f *FieldMap) CompareColumns() []string {
	return f.compare
}

// SetPrefix stores the prefix prepended (underscore-separated) to this
// table's column names in result tables.
func (f *FieldMap) SetPrefix(prefix string) {
	f.prefix = prefix
}

// Prefix returns the configured output prefix, "" when unset.
func (f *FieldMap) Prefix() string {
	return f.prefix
}

// OutputName returns the result-table name for one of this table's columns:
// prefix + "_" + column when a prefix is set, the bare column name otherwise.
func (f *FieldMap) OutputName(column string) string {
	if f.prefix == "" {
		return column
	}
	return f.prefix + "_" + column
}

// Missing returns the subset of required that has no assignment, preserving
// order.
func (f *FieldMap) Missing(required []Variable) []Variable {
	var missing []Variable
	for _, v := range required {
		if _, ok := f.assignments[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// CheckComplete fails with IncompleteError naming every unassigned required
// variable.
func (f *FieldMap) CheckComplete(required []Variable) error {
	if missing := f.Missing(required); len(missing) > 0 {
		return &IncompleteError{Table: f.table.Name, Missing: missing}
	}
	return nil
}

// Rebind returns a copy of f bound to a replacement table (e.g. the
// enriched table a fetch produced). Assignments and column sets referencing
// columns the new table lacks are dropped.
func (f *FieldMap) Rebind(t *tabular.Table) *FieldMap {
	out := New(t)
	out.prefix = f.prefix
	for v, col := range f.assignments {
		if t.HasColumn(col) {
			out.assignments[v] = col
		}
	}
	for _, col := range f.output {
		if t.HasColumn(col) {
			out.output = append(out.output, col)
		}
	}
	for _, col := range f.compare {
		if t.HasColumn(col) {
			out.compare = append(out.compare, col)
		}
	}
	return out
}

// Describe renders the configuration for the shell's config command.
func (f *FieldMap) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{\n\tfile:\t%s\n\tprefix:\t%s\n\n", f.table.Name, f.prefix)
	for _, v := range Variables() {
		col, ok := f.assignments[v]
		if !ok {
			col = "unset"
		}
		fmt.Fprintf(&b, "\t%s:\t%s\n", v, col)
	}
	fmt.Fprintf(&b, "\n\toutput: [%s]\n", strings.Join(f.output, ", "))
	fmt.Fprintf(&b, "\tcompare: [%s]\n}", strings.Join(f.compare, ", "))
	return b.String()
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
