// Package table holds the tabular model shared by the readers, the batch
// runner, and the exporters: an ordered column list plus rows of string
// values aligned to it.
package table

// Row is one input record. Index is the row's position in the source file
// (0-based, header excluded) and is immutable; the batch runner carries it
// through so every result stays traceable to its origin row.
type Row struct {
	Index  int
	Values []string
}

// Table is an ordered sequence of rows under a shared header.
type Table struct {
	Columns []string
	Rows    []Row
}

// ColumnIndex returns the position of a column by name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Value returns the cell at (row, column index), tolerating ragged rows.
func (r Row) Value(col int) string {
	if col < 0 || col >= len(r.Values) {
		return ""
	}
	return r.Values[col]
}
