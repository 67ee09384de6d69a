package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2a-linkage/internal/table"
)

func yearSet(year int, cols []string, rows ...table.Row) YearlyRecordSet {
	return YearlyRecordSet{Year: year, Columns: cols, Rows: rows}
}

func TestReconcileRenamesAcrossYears(t *testing.T) {
	sets := []YearlyRecordSet{
		yearSet(2015, []string{"CASE_NUMBER", "WORKSITE_CITY"},
			table.Row{"CASE_NUMBER": "H-300-15", "WORKSITE_CITY": "FRESNO"}),
		yearSet(2014, []string{"CASE_NO", "WORKSITE_LOCATION_CITY"},
			table.Row{"CASE_NO": "H-300-14", "WORKSITE_LOCATION_CITY": "YUMA"}),
	}
	aliases := Aliases{Global: map[string]string{
		"CASE_NO":                "CASE_NUMBER",
		"WORKSITE_LOCATION_CITY": "WORKSITE_CITY",
	}}

	got, err := Reconcile(sets, aliases, Intersect)
	require.NoError(t, err)
	assert.Equal(t, []string{"CASE_NUMBER", "WORKSITE_CITY"}, got.Fields)
	require.Len(t, got.Rows, 2)

	// year order, not input order
	assert.Equal(t, 2014, got.Rows[0].Year)
	assert.Equal(t, table.Row{"CASE_NUMBER": "H-300-14", "WORKSITE_CITY": "YUMA"}, got.Rows[0].Values)
	assert.Equal(t, 2015, got.Rows[1].Year)
	assert.Equal(t, "FRESNO", got.Rows[1].Values["WORKSITE_CITY"])
}

func TestReconcileIntersectAndFill(t *testing.T) {
	sets := []YearlyRecordSet{
		yearSet(2014, []string{"A", "B", "C"}, table.Row{"A": 1, "B": 2, "C": 3}),
		yearSet(2015, []string{"A", "B", "D"}, table.Row{"A": 4, "B": 5, "D": 6}),
		yearSet(2016, []string{"A", "B"}, table.Row{"A": 7, "B": 8}),
	}

	inter, err := Reconcile(sets, Aliases{}, Intersect)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, inter.Fields)
	for _, r := range inter.Rows {
		assert.Len(t, r.Values, 2)
	}

	fill, err := Reconcile(sets, Aliases{}, FillNull)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, fill.Fields)
	require.Len(t, fill.Rows, 3)
	for _, r := range fill.Rows {
		assert.Len(t, r.Values, 4, "every field present, possibly as explicit null")
	}
	v, ok := fill.Rows[2].Values["C"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 6, fill.Rows[1].Values["D"])
}

func TestReconcileEmptyYearStillConstrainsIntersection(t *testing.T) {
	sets := []YearlyRecordSet{
		yearSet(2014, []string{"A", "B"}, table.Row{"A": 1, "B": 2}),
		yearSet(2015, []string{"A"}),
	}
	got, err := Reconcile(sets, Aliases{}, Intersect)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.Fields)
	assert.Len(t, got.Rows, 1)
}

func TestReconcileErrors(t *testing.T) {
	_, err := Reconcile(nil, Aliases{}, Intersect)
	assert.ErrorIs(t, err, ErrEmptyInput)

	// alias collides with a column that is already canonical
	sets := []YearlyRecordSet{yearSet(2019, []string{"CASE_NO", "CASE_NUMBER"})}
	_, err = Reconcile(sets, Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER"}}, FillNull)
	var conflict *SchemaConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 2019, conflict.Year)
	assert.Equal(t, "CASE_NUMBER", conflict.Field)
	assert.ElementsMatch(t, []string{"CASE_NO", "CASE_NUMBER"}, conflict.Columns)

	// two historic spellings present in one year
	sets = []YearlyRecordSet{yearSet(2016, []string{"PRIMARY/SUB", "PRMARY/SUB"})}
	_, err = Reconcile(sets, Aliases{Global: map[string]string{
		"PRIMARY/SUB": "PRIMARY_SUB", "PRMARY/SUB": "PRIMARY_SUB",
	}}, Intersect)
	require.True(t, errors.As(err, &conflict))

	sets = []YearlyRecordSet{yearSet(2016, []string{"A", "A"})}
	_, err = Reconcile(sets, Aliases{}, Intersect)
	require.True(t, errors.As(err, &conflict))
}

func TestYearAliasOverridesGlobal(t *testing.T) {
	aliases := Aliases{
		Global: map[string]string{"FULL_TIME": "FULL_TIME_JOB"},
		Year:   map[int]map[string]string{2018: {"FULL_TIME": "FULL_TIME_POSITION"}},
	}
	assert.Equal(t, "FULL_TIME_POSITION", aliases.Resolve(2018, "FULL_TIME"))
	assert.Equal(t, "FULL_TIME_JOB", aliases.Resolve(2017, "FULL_TIME"))
	assert.Equal(t, "OTHER", aliases.Resolve(2018, "OTHER"))
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	row := table.Row{"CASE_NO": "x"}
	sets := []YearlyRecordSet{yearSet(2014, []string{"CASE_NO"}, row)}
	_, err := Reconcile(sets, Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER"}}, FillNull)
	require.NoError(t, err)
	assert.Equal(t, table.Row{"CASE_NO": "x"}, row)
	assert.Equal(t, []string{"CASE_NO"}, sets[0].Columns)
}

func TestCanonicalTable(t *testing.T) {
	sets := []YearlyRecordSet{yearSet(2014, []string{"A"}, table.Row{"A": "a"})}
	got, err := Reconcile(sets, Aliases{}, Intersect)
	require.NoError(t, err)
	tbl := got.Table("")
	assert.Equal(t, []string{"A", "data_source"}, tbl.Columns)
	assert.Equal(t, "file_2014", tbl.Rows[0]["data_source"])
}

func TestDiff(t *testing.T) {
	sets := []YearlyRecordSet{
		yearSet(2014, []string{"CASE_NO", "WORKSITE_LOCATION_CITY", "ONLY_2014"}),
		yearSet(2015, []string{"CASE_NUMBER", "WORKSITE_CITY"}),
		yearSet(2016, []string{"CASE_NUMBER", "WORKSITE_CITY", "WORKSITE_COUNTY"}),
	}
	raw := Diff(sets, nil)
	assert.Empty(t, raw.Intersecting)
	assert.Contains(t, raw.UniqueToFirst, "ONLY_2014")
	require.Len(t, raw.Deltas, 2)
	assert.Equal(t, []string{"WORKSITE_COUNTY"}, raw.Deltas[1].Added)

	aliases := &Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER", "WORKSITE_LOCATION_CITY": "WORKSITE_CITY"}}
	renamed := Diff(sets, aliases)
	assert.Equal(t, []string{"CASE_NUMBER", "WORKSITE_CITY"}, renamed.Intersecting)
	assert.Equal(t, []string{"ONLY_2014"}, renamed.UniqueToFirst)
	assert.Equal(t, []string{"ONLY_2014"}, renamed.Deltas[0].Removed)
}

func TestDerive(t *testing.T) {
	cols := []string{"ATTORNEY_AGENT_FIRST_NAME", "ATTORNEY_AGENT_MIDDLE_NAME", "ATTORNEY_AGENT_LAST_NAME"}
	sets := []YearlyRecordSet{
		yearSet(2019, []string{"ATTORNEY_AGENT_NAME"}, table.Row{"ATTORNEY_AGENT_NAME": "ANN LEE"}),
		yearSet(2020, cols, table.Row{
			"ATTORNEY_AGENT_FIRST_NAME": "ANN", "ATTORNEY_AGENT_MIDDLE_NAME": nil, "ATTORNEY_AGENT_LAST_NAME": "LEE",
		}),
	}
	derived, err := Derive(sets, []Concat{{Target: "ATTORNEY_AGENT_NAME", Sources: cols, Sep: " "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ATTORNEY_AGENT_NAME"}, derived[0].Columns)
	assert.Equal(t, "ANN  LEE", derived[1].Rows[0]["ATTORNEY_AGENT_NAME"])
	assert.NotContains(t, sets[1].Rows[0], "ATTORNEY_AGENT_NAME")

	got, err := Reconcile(derived, Aliases{}, Intersect)
	require.NoError(t, err)
	assert.Equal(t, []string{"ATTORNEY_AGENT_NAME"}, got.Fields)

	clash := []YearlyRecordSet{yearSet(2020, append([]string{"ATTORNEY_AGENT_NAME"}, cols...))}
	_, err = Derive(clash, []Concat{{Target: "ATTORNEY_AGENT_NAME", Sources: cols, Sep: " "}})
	var conflict *SchemaConflictError
	assert.True(t, errors.As(err, &conflict))
}
