package table

import (
	"fmt"
	"strings"
)

// Suffixes used to disambiguate columns present on both sides of a join
const (
	LeftSuffix  = "_left"
	RightSuffix = "_right"
)

// Key builds a composite lookup key from the formatted values of columns.
// The second result is false when any key cell is null.
func Key(r Row, columns []string) (string, bool) {
	parts := make([]string, len(columns))
	for i, c := range columns {
		s, ok := String(r[c])
		if !ok {
			return "", false
		}
		parts[i] = s
	}
	return strings.Join(parts, "\x1f"), true
}

// LeftJoin keeps every left row and attaches the columns of each right row
// whose key columns are equal. A left row matching several right rows is
// repeated; a left row matching none gets nulls. Non-key columns present on
// both sides are suffixed with LeftSuffix/RightSuffix.
func LeftJoin(left, right *Table, on ...string) (*Table, error) {
	for _, c := range on {
		if !left.Has(c) || !right.Has(c) {
			return nil, fmt.Errorf("join column %q missing on one side", c)
		}
	}
	keySet := make(map[string]bool, len(on))
	for _, c := range on {
		keySet[c] = true
	}

	leftNames := make(map[string]string, len(left.Columns))
	rightNames := make(map[string]string, len(right.Columns))
	var columns []string
	for _, c := range left.Columns {
		name := c
		if !keySet[c] && right.Has(c) {
			name = c + LeftSuffix
		}
		leftNames[c] = name
		columns = append(columns, name)
	}
	for _, c := range right.Columns {
		if keySet[c] {
			continue
		}
		name := c
		if left.Has(c) {
			name = c + RightSuffix
		}
		rightNames[c] = name
		columns = append(columns, name)
	}

	index := make(map[string][]Row)
	for _, r := range right.Rows {
		if k, ok := Key(r, on); ok {
			index[k] = append(index[k], r)
		}
	}

	out := New(columns...)
	for _, l := range left.Rows {
		base := make(Row, len(columns))
		for c, name := range leftNames {
			base[name] = l[c]
		}
		k, ok := Key(l, on)
		matches := index[k]
		if !ok || len(matches) == 0 {
			for _, name := range rightNames {
				base[name] = nil
			}
			out.Append(base)
			continue
		}
		for _, m := range matches {
			nr := base.Clone()
			for c, name := range rightNames {
				nr[name] = m[c]
			}
			out.Append(nr)
		}
	}
	return out, nil
}
