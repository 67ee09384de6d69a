package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row maps column names to values. A nil value and a missing key both mean null.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of named columns over row records
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given columns
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds a row. Columns are not checked.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Index returns the position of a column or -1
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Has reports whether the table declares the column
func (t *Table) Has(column string) bool {
	return t.Index(column) >= 0
}

// Column returns the values of one column in row order
func (t *Table) Column(column string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[column]
	}
	return out
}

// Clone copies the column list and every row so the result can be mutated
// without touching the receiver.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// WithColumn returns a copy of the table with a column computed per row.
// An existing column of the same name is overwritten in place.
func (t *Table) WithColumn(name string, fn func(Row) any) *Table {
	out := t.Clone()
	if !out.Has(name) {
		out.Columns = append(out.Columns, name)
	}
	for _, r := range out.Rows {
		r[name] = fn(r)
	}
	return out
}

// Filter returns a copy holding only rows for which keep returns true
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Append(r.Clone())
		}
	}
	return out
}

// Select returns a copy restricted to the listed columns. Unknown columns are
// an error.
func (t *Table) Select(columns ...string) (*Table, error) {
	for _, c := range columns {
		if !t.Has(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	out := New(columns...)
	for _, r := range t.Rows {
		nr := make(Row, len(columns))
		for _, c := range columns {
			nr[c] = r[c]
		}
		out.Append(nr)
	}
	return out, nil
}

// IsNull reports whether v is a null cell
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && f != f {
		return true
	}
	return false
}

// String returns the text form of a non-null value
func String(v any) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return Format(v), true
}

// Float returns the numeric form of a value, accepting ints, floats and
// numeric strings
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if n != n {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Time returns a time value
func Time(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// Format renders a value for keys and CSV output. Null is the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x != x {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// Concat stacks tables. Columns keep first-seen order and rows missing a
// column get null.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	out := New(columns...)
	for _, t := range tables {
		for _, r := range t.Rows {
			nr := make(Row, len(columns))
			for _, c := range columns {
				nr[c] = r[c]
			}
			out.Append(nr)
		}
	}
	return out
}
