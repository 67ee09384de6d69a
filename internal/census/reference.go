package census

import (
	"fmt"

	"github.com/h2a-linkage/internal/table"
)

// ReferenceSet is the floor of geography keys the final output must carry
type ReferenceSet []string

// ReferenceFromTable reads distinct geography keys from a column
func ReferenceFromTable(t *table.Table, column string) (ReferenceSet, error) {
	if !t.Has(column) {
		return nil, fmt.Errorf("census: reference table has no column %q", column)
	}
	var ref ReferenceSet
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		s, ok := table.String(r[column])
		if !ok {
			continue
		}
		key, err := NormalizeKey(s)
		if err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			ref = append(ref, key)
		}
	}
	return ref, nil
}

// ReconcileWithReference outer-merges the percentage and raw tables on
// geography key, then appends an all-null row for every reference key the
// merge lacks. Keys outside the reference are kept. The result has exactly
// one row per key, so running it again over its own output is a no-op.
func ReconcileWithReference(percentages, raw *Wide, reference ReferenceSet) (*Wide, error) {
	out := NewWide()

	owner := make(map[string]bool)
	for _, w := range []*Wide{percentages, raw} {
		if w == nil {
			continue
		}
		for _, c := range w.Columns {
			if owner[c] {
				return nil, &DuplicateGroupKeyError{Column: c}
			}
			owner[c] = true
			out.Columns = append(out.Columns, c)
		}
	}

	for _, w := range []*Wide{percentages, raw} {
		if w == nil {
			continue
		}
		for _, k := range w.Keys {
			key, err := NormalizeKey(k)
			if err != nil {
				return nil, err
			}
			row, ok := out.cells[key]
			if !ok {
				row = make(map[string]*float64)
				out.addRow(key, row)
			}
			for c, v := range w.cells[k] {
				if _, dup := row[c]; dup {
					return nil, &DuplicateGroupKeyError{GeoKey: key, Column: c}
				}
				row[c] = copyFloat(v)
			}
		}
	}

	for _, k := range reference {
		key, err := NormalizeKey(k)
		if err != nil {
			return nil, err
		}
		if !out.HasKey(key) {
			out.addRow(key, make(map[string]*float64))
		}
	}
	return out, nil
}
