package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the default layout for date-only cells
const DateLayout = "2006-01-02"

// Kind is the logical type of a column
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindTime   Kind = "time"
	KindBool   Kind = "bool"
)

// ParseKind validates a kind name from configuration
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindString, KindInt, KindFloat, KindTime, KindBool:
		return k, nil
	case "date", "datetime":
		return KindTime, nil
	case "number", "numeric":
		return KindFloat, nil
	}
	return "", fmt.Errorf("unknown column kind %q", s)
}

// ParseError reports a cell that could not be converted
type ParseError struct {
	Column string
	Row    int
	Value  string
	Kind   Kind
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("column %s row %d: cannot parse %q as %s: %v", e.Column, e.Row, e.Value, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Coerce returns a copy of the table with string cells of the listed columns
// converted to the given kinds. Empty strings become null. Time cells are
// tried against each layout in order; when layouts is empty DateLayout and
// RFC3339 are used. When lenient is true, unparseable cells become null
// instead of failing, which mirrors coercing bad dates to NaT.
func (t *Table) Coerce(kinds map[string]Kind, lenient bool, layouts ...string) (*Table, error) {
	if len(layouts) == 0 {
		layouts = []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}
	}
	out := t.Clone()
	for col, kind := range kinds {
		if !out.Has(col) {
			return nil, fmt.Errorf("coerce: unknown column %q", col)
		}
		for i, r := range out.Rows {
			s, isString := r[col].(string)
			if !isString {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				r[col] = nil
				continue
			}
			v, err := parseCell(s, kind, layouts)
			if err != nil {
				if lenient {
					r[col] = nil
					continue
				}
				return nil, &ParseError{Column: col, Row: i, Value: s, Kind: kind, Err: err}
			}
			r[col] = v
		}
	}
	return out, nil
}

func parseCell(s string, kind Kind, layouts []string) (any, error) {
	switch kind {
	case KindString:
		return s, nil
	case KindInt:
		return strconv.ParseInt(s, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(s, 64)
	case KindBool:
		return strconv.ParseBool(s)
	case KindTime:
		var lastErr error
		for _, layout := range layouts {
			ts, err := time.Parse(layout, s)
			if err == nil {
				return ts, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return nil, fmt.Errorf("unsupported kind %q", kind)
}
