package etl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2a-linkage/internal/census"
	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/table"
	"github.com/h2a-linkage/internal/violations"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func disclosureYears() map[int]*table.Table {
	y2014 := table.New("CASE_NO", "EMPLOYER_NAME")
	y2014.Append(table.Row{"CASE_NO": "H-300-14001", "EMPLOYER_NAME": "Sunny Farms LLC."})
	y2015 := table.New("CASE_NUMBER", "EMPLOYER_NAME", "WORKSITE_CITY")
	y2015.Append(table.Row{"CASE_NUMBER": "H-300-15001", "EMPLOYER_NAME": "Blue River Co.", "WORKSITE_CITY": "FRESNO"})
	y2015.Append(table.Row{"CASE_NUMBER": "H-300-15002", "EMPLOYER_NAME": "Green Acres", "WORKSITE_CITY": "YUMA"})
	return map[int]*table.Table{2015: y2015, 2014: y2014}
}

func TestReconcileAudited(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := NewPipeline(st, false)

	res, err := p.Reconcile(ctx, ReconcileInput{
		Years:   disclosureYears(),
		Aliases: schema.Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER"}},
		Policy:  schema.Intersect,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"CASE_NUMBER", "EMPLOYER_NAME", "data_source"}, res.Table.Columns)
	require.Equal(t, 3, res.Table.Len())
	assert.Equal(t, "file_2014", res.Table.Rows[0]["data_source"])

	saved, err := st.LoadTable(ctx, res.RunID, StageReconcile)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Columns, saved.Columns)
	assert.Equal(t, 3, saved.Len())

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusSuccess, runs[0].Status)
	assert.Equal(t, 3, runs[0].RowsIn)
	assert.Equal(t, 3, runs[0].RowsOut)
}

func TestReconcileFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := NewPipeline(st, false)

	years := disclosureYears()
	_, err := p.Reconcile(ctx, ReconcileInput{
		Years:   years,
		Aliases: schema.Aliases{Year: map[int]map[string]string{2015: {"WORKSITE_CITY": "EMPLOYER_NAME"}}},
	})
	require.Error(t, err)
	var conflict *schema.SchemaConflictError
	assert.ErrorAs(t, err, &conflict)

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Message)
}

func TestReconcileWithoutStore(t *testing.T) {
	p := NewPipeline(nil, false)
	res, err := p.Reconcile(context.Background(), ReconcileInput{
		Years:            disclosureYears(),
		Aliases:          schema.Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER"}},
		Policy:           schema.FillNull,
		ProvenanceColumn: "source",
	})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Equal(t, []string{"CASE_NUMBER", "EMPLOYER_NAME", "WORKSITE_CITY", "source"}, res.Table.Columns)
	assert.Nil(t, res.Table.Rows[0]["WORKSITE_CITY"])
}

func TestDiff(t *testing.T) {
	years := disclosureYears()
	raw := Diff(years, nil)
	assert.Equal(t, []string{"EMPLOYER_NAME"}, raw.Intersecting)

	aliases := schema.Aliases{Global: map[string]string{"CASE_NO": "CASE_NUMBER"}}
	resolved := Diff(years, &aliases)
	assert.ElementsMatch(t, []string{"CASE_NUMBER", "EMPLOYER_NAME"}, resolved.Intersecting)
}

func acsPull(values map[string][2]float64) *table.Table {
	t := table.New("GEO_ID", "NAME", "B01001_001E", "B01001_002E", "B19013_001E")
	for _, geo := range []string{"1400000US06025012300", "1400000US06025012400"} {
		v, ok := values[geo]
		if !ok {
			continue
		}
		t.Append(table.Row{"GEO_ID": geo, "NAME": "tract", "B01001_001E": v[0], "B01001_002E": v[1], "B19013_001E": 41000.0})
	}
	return t
}

func TestPercentages(t *testing.T) {
	p := NewPipeline(nil, false)
	res, err := p.Percentages(context.Background(), PercentageInput{
		Sources: map[string]*table.Table{
			"file_2015": acsPull(map[string][2]float64{"1400000US06025012300": {200, 50}}),
			"file_2014": acsPull(map[string][2]float64{"1400000US06025012300": {100, 40}}),
		},
		Excluded:  map[string]bool{"B19013": true},
		Reference: census.ReferenceSet{"06025012300", "06025012400"},
	})
	require.NoError(t, err)

	tbl := res.Table
	assert.Equal(t, []string{"GEO_ID", "B01001_002E", "B19013_001E", "data_source"}, tbl.Columns)
	require.Equal(t, 4, tbl.Len(), "two sources, each padded to the reference set")

	first := tbl.Rows[0]
	assert.Equal(t, "06025012300", first["GEO_ID"])
	assert.Equal(t, "file_2014", first["data_source"])
	assert.InDelta(t, 0.4, first["B01001_002E"].(float64), 1e-12)
	assert.Equal(t, 41000.0, first["B19013_001E"], "excluded prefix passes through raw")

	padded := tbl.Rows[1]
	assert.Equal(t, "06025012400", padded["GEO_ID"])
	assert.Nil(t, padded["B01001_002E"])

	assert.Equal(t, "file_2015", tbl.Rows[2]["data_source"])
	assert.InDelta(t, 0.25, tbl.Rows[2]["B01001_002E"].(float64), 1e-12)

	require.Len(t, res.BySource, 2)
	jobs := table.New("CASE_NUMBER", "GEO_ID", "data_source")
	jobs.Append(table.Row{"CASE_NUMBER": "H-1", "GEO_ID": "1400000US06025012300", "data_source": "file_2015"})
	attached, err := p.Attach(context.Background(), jobs, "GEO_ID", "data_source", res.BySource)
	require.NoError(t, err)
	require.Equal(t, 1, attached.Table.Len())
	assert.InDelta(t, 0.25, attached.Table.Rows[0]["B01001_002E"].(float64), 1e-12)
}

func linkageInputs() (apps, registry *table.Table) {
	apps = table.New("CASE_STATUS", "EMPLOYER_NAME", "EMPLOYER_CITY", "EMPLOYER_STATE", "JOB_START_DATE")
	apps.Append(table.Row{"CASE_STATUS": "Determination Issued - Certification", "EMPLOYER_NAME": "Sunny Farms LLC.", "EMPLOYER_CITY": "Yuma", "EMPLOYER_STATE": "AZ", "JOB_START_DATE": "2018-03-01"})
	apps.Append(table.Row{"CASE_STATUS": "Determination Issued - Certification", "EMPLOYER_NAME": "Blue River Co.", "EMPLOYER_CITY": "Fresno", "EMPLOYER_STATE": "CA", "JOB_START_DATE": "2018-05-01"})
	apps.Append(table.Row{"CASE_STATUS": "Determination Issued - Denied", "EMPLOYER_NAME": "Green Acres", "EMPLOYER_CITY": "Wenatchee", "EMPLOYER_STATE": "WA", "JOB_START_DATE": "2018-04-01"})

	registry = table.New("legal_name", "cty_nm", "st_cd", "ld_dt", "h2a_violtn_cnt")
	registry.Append(table.Row{"legal_name": "SUNNY FARMS LLC", "cty_nm": "YUMA", "st_cd": "AZ", "ld_dt": "2019-01-10", "h2a_violtn_cnt": "2"})
	registry.Append(table.Row{"legal_name": "Blue River Co.", "cty_nm": "FRESNO", "st_cd": "CA", "ld_dt": "2018-01-01", "h2a_violtn_cnt": "1"})
	registry.Append(table.Row{"legal_name": "GREEN ACRES", "cty_nm": "WENATCHEE", "st_cd": "WA", "ld_dt": "2015-06-01", "h2a_violtn_cnt": "3"})
	registry.Append(table.Row{"legal_name": "  ", "cty_nm": "YUMA", "st_cd": "AZ", "ld_dt": "2019-02-01", "h2a_violtn_cnt": "1"})
	return apps, registry
}

func TestMatchAndLabel(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := NewPipeline(st, false)

	apps, registry := linkageInputs()
	left, right, err := PrepareMatchInputs(apps, registry, violations.DefaultRegistryColumns, time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, left.Len(), "denied application dropped")
	assert.Equal(t, 2, right.Len(), "old and blank registry rows dropped")

	matched, err := p.Match(ctx, left, right, match.Options{
		LeftBlock:    []string{"EMPLOYER_STATE"},
		RightBlock:   []string{"st_cd"},
		LeftFields:   []string{"name", "city"},
		RightFields:  []string{"name", "city"},
		Threshold:    0.85,
		ProjectLeft:  []string{"JOB_START_DATE", "name"},
		ProjectRight: []string{"name", "h2a_violtn_cnt", "ld_dt"},
	})
	require.NoError(t, err)
	require.Len(t, matched.Match.Pairs, 2)
	assert.Equal(t, 2, matched.Table.Len())
	assert.NotEmpty(t, matched.RunID)

	labelled, err := p.Label(ctx, LabelInput{
		Applications: left,
		Matches:      matched.Table,
		Mode:         violations.PredictViolations,
		Columns:      violations.DefaultColumns,
		LoadSource:   "ld_dt",
		AppName:      "name",
		MatchedName:  "name_left",
		LabelColumn:  "is_matched_investigations",
	})
	require.NoError(t, err)
	require.Equal(t, 2, labelled.Table.Len())
	// Blue River was loaded before its job started
	assert.Equal(t, []any{1, 0}, labelled.Table.Column("is_matched_investigations"))

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMatchEmptyBlockFails(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := NewPipeline(st, false)

	left := table.New("EMPLOYER_STATE", "name")
	left.Append(table.Row{"EMPLOYER_STATE": "AZ", "name": "A"})
	right := table.New("st_cd", "name")
	right.Append(table.Row{"st_cd": "CA", "name": "A"})

	_, err := p.Match(ctx, left, right, match.Options{
		LeftBlock:   []string{"EMPLOYER_STATE"},
		RightBlock:  []string{"st_cd"},
		LeftFields:  []string{"name"},
		RightFields: []string{"name"},
		Threshold:   0.85,
	})
	var empty *match.EmptyBlockError
	require.ErrorAs(t, err, &empty)

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)
}

func TestRepresent(t *testing.T) {
	in := table.New("name", "workers", "JOB_START_DATE", "JOB_END_DATE")
	in.Append(table.Row{"name": "SUNNY FARMS LLC", "workers": "10", "JOB_START_DATE": "2020-03-01", "JOB_END_DATE": "2020-09-01"})
	in.Append(table.Row{"name": "SUNNY FARMS LLC", "workers": "20", "JOB_START_DATE": "2020-02-01", "JOB_END_DATE": "2020-10-15"})
	in.Append(table.Row{"name": "BLUE RIVER CO", "workers": "5", "JOB_START_DATE": "bad", "JOB_END_DATE": ""})

	p := NewPipeline(nil, false)
	res, err := p.Represent(context.Background(), RepresentInput{
		Table:   in,
		GroupBy: "name",
		Kinds: map[string]table.Kind{
			"workers":        table.KindFloat,
			"JOB_START_DATE": table.KindTime,
			"JOB_END_DATE":   table.KindTime,
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len())

	sunny := res.Table.Rows[0]
	assert.Equal(t, "SUNNY FARMS LLC", sunny["name"])
	assert.InDelta(t, 15.0, sunny["workers"].(float64), 1e-12)
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), sunny["JOB_START_DATE"])
	assert.Equal(t, time.Date(2020, 10, 15, 0, 0, 0, 0, time.UTC), sunny["JOB_END_DATE"])

	blue := res.Table.Rows[1]
	assert.Nil(t, blue["JOB_START_DATE"], "unparseable dates become null")
}

func TestCorrectSpellings(t *testing.T) {
	left := table.New("city")
	left.Append(table.Row{"city": "WENATCHEE"})
	left.Append(table.Row{"city": "YUMA"})
	right := table.New("city", "name")
	right.Append(table.Row{"city": "WENATCHE", "name": "A"})
	right.Append(table.Row{"city": "YUMA", "name": "B"})

	fixed, corrections, err := CorrectSpellings(left, right, "city", nil)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, []any{"WENATCHEE", "YUMA"}, fixed.Column("city"))

	_, _, err = CorrectSpellings(left, right, "state", nil)
	assert.Error(t, err)
}
