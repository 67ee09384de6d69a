package census

import (
	"sort"

	"github.com/h2a-linkage/internal/table"
)

// Wide is a geography-indexed table of float cells. A cell can be present
// with a nil value (a computed null) or absent (never observed).
type Wide struct {
	Columns []string
	Keys    []string
	cells   map[string]map[string]*float64
}

// NewWide creates an empty wide table
func NewWide() *Wide {
	return &Wide{cells: make(map[string]map[string]*float64)}
}

// Pivot reshapes long records into one row per geography and one column per
// prefix_suffix. Keys and columns come out sorted. Two records for the same
// cell are a DuplicateGroupKeyError.
func Pivot(records []PercentageRecord) (*Wide, error) {
	w := NewWide()
	cols := make(map[string]bool)
	for _, r := range records {
		row, ok := w.cells[r.GeoKey]
		if !ok {
			row = make(map[string]*float64)
			w.cells[r.GeoKey] = row
			w.Keys = append(w.Keys, r.GeoKey)
		}
		if _, dup := row[r.Column]; dup {
			return nil, &DuplicateGroupKeyError{GeoKey: r.GeoKey, Column: r.Column}
		}
		row[r.Column] = copyFloat(r.Value)
		if !cols[r.Column] {
			cols[r.Column] = true
			w.Columns = append(w.Columns, r.Column)
		}
	}
	sort.Strings(w.Keys)
	sort.Strings(w.Columns)
	return w, nil
}

// Len returns the number of rows
func (w *Wide) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Keys)
}

// HasKey reports whether a geography has a row
func (w *Wide) HasKey(key string) bool {
	if w == nil {
		return false
	}
	_, ok := w.cells[key]
	return ok
}

// Value returns a cell; ok is false when the cell was never set
func (w *Wide) Value(key, column string) (v *float64, ok bool) {
	if w == nil {
		return nil, false
	}
	v, ok = w.cells[key][column]
	return v, ok
}

// Melt is the inverse of Pivot: one record per present cell, in key then
// column order
func (w *Wide) Melt() []PercentageRecord {
	var out []PercentageRecord
	if w == nil {
		return out
	}
	for _, k := range w.Keys {
		row := w.cells[k]
		for _, c := range w.Columns {
			if v, ok := row[c]; ok {
				out = append(out, PercentageRecord{GeoKey: k, Column: c, Value: copyFloat(v)})
			}
		}
	}
	return out
}

// Drop returns a copy without the named columns
func (w *Wide) Drop(columns ...string) *Wide {
	drop := make(map[string]bool, len(columns))
	for _, c := range columns {
		drop[c] = true
	}
	out := NewWide()
	for _, c := range w.Columns {
		if !drop[c] {
			out.Columns = append(out.Columns, c)
		}
	}
	for _, k := range w.Keys {
		row := make(map[string]*float64)
		for c, v := range w.cells[k] {
			if !drop[c] {
				row[c] = copyFloat(v)
			}
		}
		out.addRow(k, row)
	}
	return out
}

// Table renders the wide table with the geography key under keyColumn.
// Absent and null cells are both nil.
func (w *Wide) Table(keyColumn string) *table.Table {
	out := table.New(append([]string{keyColumn}, w.Columns...)...)
	for _, k := range w.Keys {
		r := table.Row{keyColumn: k}
		for _, c := range w.Columns {
			if v := w.cells[k][c]; v != nil {
				r[c] = *v
			} else {
				r[c] = nil
			}
		}
		out.Append(r)
	}
	return out
}

func (w *Wide) addRow(key string, row map[string]*float64) {
	w.Keys = append(w.Keys, key)
	w.cells[key] = row
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
