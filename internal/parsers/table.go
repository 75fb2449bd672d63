package parsers

import (
	"fmt"
	"strings"
)

// Table is an in-memory tabular dataset with named columns. Cell values keep
// whatever type the source produced (strings for CSV, raw cell text for XLSX,
// JSON scalars for API uploads).
type Table struct {
	Name    string
	Columns []string
	Rows    [][]interface{}

	index map[string]int
}

// NewTable builds a table from headers and rows. Header names are trimmed,
// blank headers become "Unnamed: N" and repeated names get a ".N" suffix.
func NewTable(name string, headers []string, rows [][]interface{}) *Table {
	t := &Table{Name: name, Columns: cleanHeaders(headers), Rows: rows}
	t.buildIndex()
	return t
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// ColumnIndex returns the index of a column by name, or -1 if not found.
// An exact match wins over a case-insensitive one.
func (t *Table) ColumnIndex(name string) int {
	if t.index == nil {
		t.buildIndex()
	}
	name = strings.TrimSpace(name)
	if i, ok := t.index[name]; ok {
		return i
	}

	lower := strings.ToLower(name)
	for i, c := range t.Columns {
		if strings.ToLower(c) == lower {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table contains the column
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the cell at row and column index, nil when out of range
func (t *Table) Value(row, col int) interface{} {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][col]
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// String returns a short description of the table
func (t *Table) String() string {
	return fmt.Sprintf("Table{%s: %d columns, %d rows}", t.Name, len(t.Columns), len(t.Rows))
}

// Concat stacks tables vertically. The result has the union of all columns in
// first-seen order; cells of columns a table does not have are nil.
func Concat(name string, tables ...*Table) *Table {
	if len(tables) == 1 {
		return tables[0]
	}

	var columns []string
	seen := make(map[string]bool)
	total := 0
	for _, t := range tables {
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
		total += len(t.Rows)
	}

	out := &Table{Name: name, Columns: columns, Rows: make([][]interface{}, 0, total)}
	out.buildIndex()

	for _, t := range tables {
		mapping := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			mapping[i] = out.index[c]
		}
		for _, row := range t.Rows {
			merged := make([]interface{}, len(columns))
			for i, v := range row {
				if i < len(mapping) {
					merged[mapping[i]] = v
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	counts := make(map[string]int)

	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := counts[h]; n > 0 {
			counts[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			counts[h] = 1
		}
		cleaned[i] = h
	}
	return cleaned
}
