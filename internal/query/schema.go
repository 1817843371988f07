package query

import "slices"

// Table describes the columns a query may name.
type Table struct {
	Columns []string
	Key     []string // default ORDER BY, in order
	Text    []string // columns that need COLLATE BINARY when ordered
}

// Schema maps table names to their descriptions.
type Schema map[string]Table

func (t Table) has(column string) bool {
	return slices.Contains(t.Columns, column)
}

func (t Table) isText(column string) bool {
	return slices.Contains(t.Text, column)
}
