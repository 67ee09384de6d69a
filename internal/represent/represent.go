package represent

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/h2a-linkage/internal/debug"
	"github.com/h2a-linkage/internal/table"
)

var (
	reStart = regexp.MustCompile(`START`)
	reEnd   = regexp.MustCompile(`END`)
)

// UnsupportedTypeError reports a column whose values cannot be summarised
type UnsupportedTypeError struct {
	Column string
	Type   string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("column %q has unsupported type %s", e.Column, e.Type)
}

type columnKind int

const (
	kindEmpty columnKind = iota
	kindNumeric
	kindCategorical
	kindTime
)

// summary reduces the non-null values of one column within a group
type summary func(column string, values []any) any

var summaries = map[columnKind]summary{
	kindNumeric:     mean,
	kindCategorical: mode,
	kindTime:        dateBound,
	kindEmpty:       func(string, []any) any { return nil },
}

// Options for FormRepresentativesWith
type Options struct {
	Debug bool
}

// FormRepresentatives collapses the rows sharing a groupBy value into one row
func FormRepresentatives(t *table.Table, groupBy string) (*table.Table, error) {
	return FormRepresentativesWith(t, groupBy, Options{})
}

// FormRepresentativesWith summarises every column of each group: numbers
// by their mean, strings by their most frequent value, and times by the
// minimum, or the maximum when the column name contains END. Groups appear in
// first-seen order and rows with a null group value are skipped.
func FormRepresentativesWith(t *table.Table, groupBy string, opts Options) (*table.Table, error) {
	if !t.Has(groupBy) {
		return nil, fmt.Errorf("group column %q not found", groupBy)
	}
	debug.DebugHeader(opts.Debug, "FORMING REPS")
	defer debug.DebugFooter(opts.Debug, "FORMING REPS")

	kinds := make(map[string]columnKind, len(t.Columns))
	for _, c := range t.Columns {
		k, err := inferKind(c, t.Column(c))
		if err != nil {
			return nil, err
		}
		kinds[c] = k
	}

	var order []string
	groups := make(map[string][]table.Row)
	for _, r := range t.Rows {
		key, ok := table.String(r[groupBy])
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := table.New(t.Columns...)
	for _, key := range order {
		rows := groups[key]
		rep := make(table.Row, len(t.Columns))
		for _, c := range t.Columns {
			values := make([]any, 0, len(rows))
			for _, r := range rows {
				if !table.IsNull(r[c]) {
					values = append(values, r[c])
				}
			}
			if len(values) == 0 {
				rep[c] = nil
				continue
			}
			rep[c] = summaries[kinds[c]](c, values)
		}
		out.Append(rep)
	}
	debug.DebugCounts(opts.Debug, "representatives", t.Len(), out.Len())
	return out, nil
}

func inferKind(column string, values []any) (columnKind, error) {
	kind := kindEmpty
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		var k columnKind
		switch v.(type) {
		case int, int32, int64, float32, float64:
			k = kindNumeric
		case string:
			k = kindCategorical
		case time.Time:
			k = kindTime
		default:
			return kindEmpty, &UnsupportedTypeError{Column: column, Type: fmt.Sprintf("%T", v)}
		}
		if kind != kindEmpty && kind != k {
			return kindEmpty, &UnsupportedTypeError{Column: column, Type: "mixed"}
		}
		kind = k
	}
	return kind, nil
}

func mean(_ string, values []any) any {
	sum := decimal.Zero
	for _, v := range values {
		f, _ := table.Float(v)
		sum = sum.Add(decimal.NewFromFloat(f))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).InexactFloat64()
}

// mode picks the most frequent value; ties go to the value seen first
func mode(_ string, values []any) any {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		s := v.(string)
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	best := order[0]
	for _, s := range order[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best
}

func dateBound(column string, values []any) any {
	latest := reEnd.MatchString(column) && !reStart.MatchString(column)
	bound := values[0].(time.Time)
	for _, v := range values[1:] {
		ts := v.(time.Time)
		if latest && ts.After(bound) || !latest && ts.Before(bound) {
			bound = ts
		}
	}
	return bound
}
