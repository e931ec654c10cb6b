// Package table implements the in-memory delimited-table model every
// pipeline stage operates on: an ordered header plus string rows. Values
// stay strings end to end; numeric and temporal interpretation happens at
// the point of use (see values.go).
package table

import "strings"

type Table struct {
	Header []string
	Rows   [][]string
}

func New(header ...string) *Table {
	h := make([]string, len(header))
	copy(h, header)
	return &Table{Header: h}
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.Index(name) >= 0
}

// AppendRow pads or truncates the row to the header width.
func (t *Table) AppendRow(row []string) {
	r := make([]string, len(t.Header))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Cell returns the value at (row, column index); out-of-range reads are "".
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

func (t *Table) SetCell(row, col int, value string) {
	if row >= 0 && row < len(t.Rows) && col >= 0 && col < len(t.Rows[row]) {
		t.Rows[row][col] = value
	}
}

// DropColumns removes the named columns where present and reports how many
// were dropped.
func (t *Table) DropColumns(names ...string) int {
	drop := make(map[int]bool)
	for _, n := range names {
		if i := t.Index(n); i >= 0 {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}
	t.project(drop)
	return len(drop)
}

// DropEmptyColumns removes columns whose every value is blank and returns
// their names.
func (t *Table) DropEmptyColumns() []string {
	drop := make(map[int]bool)
	var names []string
	for i := range t.Header {
		empty := true
		for r := range t.Rows {
			if strings.TrimSpace(t.Cell(r, i)) != "" {
				empty = false
				break
			}
		}
		if empty && len(t.Rows) > 0 {
			drop[i] = true
			names = append(names, t.Header[i])
		}
	}
	if len(drop) > 0 {
		t.project(drop)
	}
	return names
}

func (t *Table) project(drop map[int]bool) {
	header := t.Header[:0]
	for i, h := range t.Header {
		if !drop[i] {
			header = append(header, h)
		}
	}
	t.Header = header
	for r, row := range t.Rows {
		out := row[:0]
		for i, v := range row {
			if !drop[i] {
				out = append(out, v)
			}
		}
		t.Rows[r] = out
	}
}

// MoveToFront makes the named column the first column.
func (t *Table) MoveToFront(name string) bool {
	idx := t.Index(name)
	if idx <= 0 {
		return idx == 0
	}
	move := func(row []string) {
		v := row[idx]
		copy(row[1:idx+1], row[:idx])
		row[0] = v
	}
	move(t.Header)
	for _, row := range t.Rows {
		if idx < len(row) {
			move(row)
		}
	}
	return true
}

// RenameColumn renames the first column with the old name.
func (t *Table) RenameColumn(old, new string) bool {
	if i := t.Index(old); i >= 0 {
		t.Header[i] = new
		return true
	}
	return false
}

// AppendColumn adds a column at the end; missing values are blank.
func (t *Table) AppendColumn(name string, values []string) {
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		t.Rows[i] = append(t.Rows[i], v)
	}
}

// Concat appends another table's rows, unioning headers. Columns absent on
// one side are blank-filled, matching the concatenation semantics of the
// raw export merges.
func (t *Table) Concat(other *Table) {
	for _, h := range other.Header {
		if !t.HasColumn(h) {
			t.AppendColumn(h, nil)
		}
	}
	mapping := make([]int, len(other.Header))
	for i, h := range other.Header {
		mapping[i] = t.Index(h)
	}
	for _, row := range other.Rows {
		out := make([]string, len(t.Header))
		for i, v := range row {
			if i < len(mapping) && mapping[i] >= 0 {
				out[mapping[i]] = v
			}
		}
		t.Rows = append(t.Rows, out)
	}
}

// DistinctKeys returns the distinct values of a column in first-seen order.
func (t *Table) DistinctKeys(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	seen := make(map[string]bool)
	var keys []string
	for r := range t.Rows {
		v := t.Cell(r, idx)
		if !seen[v] {
			seen[v] = true
			keys = append(keys, v)
		}
	}
	return keys
}

// FilterRows keeps rows the predicate accepts and returns the number removed.
func (t *Table) FilterRows(keep func(row []string) bool) int {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	removed := len(t.Rows) - len(kept)
	t.Rows = kept
	return removed
}

// LeftJoin merges the feature table's columns onto t by key. Any columns of
// the same names already on t are dropped first, so re-running a stage
// replaces its output instead of duplicating it. Keys absent from the
// feature table receive the per-column fill value (empty string when none
// is configured). The first feature row per key wins.
func (t *Table) LeftJoin(key string, features *Table, fill map[string]string) {
	keyIdx := t.Index(key)
	fKeyIdx := features.Index(key)
	if keyIdx < 0 || fKeyIdx < 0 {
		return
	}

	var featCols []string
	for _, h := range features.Header {
		if h != key {
			featCols = append(featCols, h)
		}
	}
	t.DropColumns(featCols...)

	byKey := make(map[string][]string, len(features.Rows))
	for r, row := range features.Rows {
		k := features.Cell(r, fKeyIdx)
		if _, ok := byKey[k]; !ok {
			byKey[k] = row
		}
	}

	for _, name := range featCols {
		src := features.Index(name)
		values := make([]string, len(t.Rows))
		for r := range t.Rows {
			if row, ok := byKey[t.Cell(r, keyIdx)]; ok && src < len(row) {
				values[r] = row[src]
			} else {
				values[r] = fill[name]
			}
		}
		t.AppendColumn(name, values)
	}
}
