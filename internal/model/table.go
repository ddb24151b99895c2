package model

import "slices"

// Table is a column schema shared by an ordered list of rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns []string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the first column with the given name, or -1.
func (t *Table) Index(column string) int {
	return slices.Index(t.Columns, column)
}

func (t *Table) HasColumn(column string) bool {
	return t.Index(column) >= 0
}

// SameSchema reports whether columns match the table's schema exactly.
func (t *Table) SameSchema(columns []string) bool {
	return slices.Equal(t.Columns, columns)
}

// Append adds rows to the end of the table.
func (t *Table) Append(rows ...[]string) {
	t.Rows = append(t.Rows, rows...)
}

// Record returns row i as a column-to-value map. Repeated column names keep
// their first value.
func (t *Table) Record(i int) map[string]string {
	row := t.Rows[i]
	record := make(map[string]string, len(t.Columns))
	for j, column := range t.Columns {
		if _, ok := record[column]; ok {
			continue
		}
		if j < len(row) {
			record[column] = row[j]
		}
	}
	return record
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}
