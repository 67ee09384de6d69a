package schema

import (
	"fmt"
	"strings"

	"github.com/h2a-linkage/internal/table"
)

// Policy decides which fields survive reconciliation
type Policy int

const (
	// Intersect keeps only fields present in every year
	Intersect Policy = iota
	// FillNull keeps the union of fields and nulls the gaps
	FillNull
)

func (p Policy) String() string {
	switch p {
	case Intersect:
		return "intersect"
	case FillNull:
		return "fill_null"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy reads a policy name from configuration
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "intersect":
		return Intersect, nil
	case "fill", "fill_null", "union":
		return FillNull, nil
	}
	return 0, fmt.Errorf("unknown reconcile policy %q", s)
}

// YearlyRecordSet is one reporting year's table with its raw column names
type YearlyRecordSet struct {
	Year    int
	Columns []string
	Rows    []table.Row
}

// FromTable wraps a table read for one year
func FromTable(year int, t *table.Table) YearlyRecordSet {
	return YearlyRecordSet{Year: year, Columns: append([]string(nil), t.Columns...), Rows: t.Rows}
}

// Aliases maps historically used raw column names to canonical names.
// Global entries apply to every year; Year entries override them for one year.
type Aliases struct {
	Global map[string]string
	Year   map[int]map[string]string
}

// Resolve returns the canonical name of a raw column in a given year
func (a Aliases) Resolve(year int, raw string) string {
	if perYear, ok := a.Year[year]; ok {
		if c, ok := perYear[raw]; ok {
			return c
		}
	}
	if c, ok := a.Global[raw]; ok {
		return c
	}
	return raw
}

// CanonicalRow is one reconciled row tagged with the year it came from
type CanonicalRow struct {
	Year   int
	Values table.Row
}

// CanonicalRecordSet is the union of all years under one field set
type CanonicalRecordSet struct {
	Policy Policy
	Fields []string
	Rows   []CanonicalRow
}

// ProvenanceTag is the source label written for a year, e.g. file_2014
func ProvenanceTag(year int) string {
	return fmt.Sprintf("file_%d", year)
}

// Table flattens the record set, adding the provenance tag under column.
// An empty column name defaults to data_source.
func (c *CanonicalRecordSet) Table(column string) *table.Table {
	if column == "" {
		column = "data_source"
	}
	out := table.New(append(append([]string(nil), c.Fields...), column)...)
	for _, r := range c.Rows {
		row := r.Values.Clone()
		row[column] = ProvenanceTag(r.Year)
		out.Append(row)
	}
	return out
}
