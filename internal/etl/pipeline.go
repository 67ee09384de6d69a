package etl

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/h2a-linkage/internal/census"
	"github.com/h2a-linkage/internal/debug"
	"github.com/h2a-linkage/internal/disclosure"
	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/represent"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/store"
	"github.com/h2a-linkage/internal/symspell"
	"github.com/h2a-linkage/internal/table"
	"github.com/h2a-linkage/internal/violations"
)

// Stage names recorded in the run audit
const (
	StageReconcile   = "reconcile"
	StagePercentages = "percentages"
	StageAttach      = "attach"
	StageMatch       = "match"
	StageLabel       = "label"
	StageRepresent   = "represent"
)

// Pipeline runs the linkage stages. When a store is attached every stage
// is audited and its output table saved under the run.
type Pipeline struct {
	store *store.Store
	debug bool
}

// NewPipeline creates a pipeline. st may be nil.
func NewPipeline(st *store.Store, localDebug bool) *Pipeline {
	return &Pipeline{store: st, debug: localDebug}
}

// StageResult is the output of one stage
type StageResult struct {
	RunID string
	Table *table.Table
}

// track runs fn as an audited stage
func (p *Pipeline) track(ctx context.Context, stage string, rowsIn int, fn func() (*table.Table, error)) (*StageResult, error) {
	defer debug.DebugTiming(p.debug, stage)()

	if p.store == nil {
		t, err := fn()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		return &StageResult{Table: t}, nil
	}

	run, err := p.store.StartRun(ctx, stage)
	if err != nil {
		return nil, err
	}

	t, runErr := fn()
	rowsOut := 0
	if runErr == nil {
		rowsOut = t.Len()
		if err := p.store.SaveTable(ctx, run.ID, stage, t); err != nil {
			runErr = fmt.Errorf("failed to save output: %w", err)
		}
	}
	if err := p.store.FinishRun(ctx, run.ID, rowsIn, rowsOut, runErr); err != nil {
		log.Printf("Warning: failed to finish run %s: %v", run.ID, err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("%s: %w", stage, runErr)
	}
	return &StageResult{RunID: run.ID, Table: t}, nil
}

// ReconcileInput is one reconciliation request
type ReconcileInput struct {
	Years            map[int]*table.Table
	Aliases          schema.Aliases
	Derived          []schema.Concat
	Policy           schema.Policy
	ProvenanceColumn string
}

// YearlySets wraps per-year tables in year order
func YearlySets(years map[int]*table.Table) []schema.YearlyRecordSet {
	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Ints(keys)
	sets := make([]schema.YearlyRecordSet, len(keys))
	for i, y := range keys {
		sets[i] = schema.FromTable(y, years[y])
	}
	return sets
}

// Reconcile derives configured columns, renames aliases and unions the years
func (p *Pipeline) Reconcile(ctx context.Context, in ReconcileInput) (*StageResult, error) {
	sets := YearlySets(in.Years)
	rowsIn := 0
	for _, s := range sets {
		rowsIn += len(s.Rows)
	}
	return p.track(ctx, StageReconcile, rowsIn, func() (*table.Table, error) {
		derived, err := schema.Derive(sets, in.Derived)
		if err != nil {
			return nil, err
		}
		canonical, err := schema.ReconcileDebug(p.debug, derived, in.Aliases, in.Policy)
		if err != nil {
			return nil, err
		}
		return canonical.Table(in.ProvenanceColumn), nil
	})
}

// Diff reports column drift across years. With aliases non nil the report
// is computed on canonical names.
func Diff(years map[int]*table.Table, aliases *schema.Aliases) schema.DiffReport {
	return schema.Diff(YearlySets(years), aliases)
}

// PercentageInput is one demographic aggregation request. Sources maps a
// data source tag to its long ACS pull.
type PercentageInput struct {
	Sources      map[string]*table.Table
	Variables    *census.Variables
	Excluded     map[string]bool
	Reference    census.ReferenceSet
	Drop         []string
	GeoColumn    string
	SourceColumn string
}

// PercentageResult carries the stacked table and the per-source wide tables
type PercentageResult struct {
	*StageResult
	BySource map[string]*census.Wide
}

// Percentages aggregates every source, reconciles it with the reference
// geography set and stacks the sources with a source column
func (p *Pipeline) Percentages(ctx context.Context, in PercentageInput) (*PercentageResult, error) {
	geoCol := in.GeoColumn
	if geoCol == "" {
		geoCol = "GEO_ID"
	}
	srcCol := in.SourceColumn
	if srcCol == "" {
		srcCol = "data_source"
	}

	sources := make([]string, 0, len(in.Sources))
	rowsIn := 0
	for s, t := range in.Sources {
		sources = append(sources, s)
		rowsIn += t.Len()
	}
	sort.Strings(sources)

	excluded := make(map[string]bool, len(in.Excluded))
	for k, v := range in.Excluded {
		excluded[k] = v
	}
	if in.Variables != nil {
		for k := range in.Variables.Excluded() {
			excluded[k] = true
		}
	}

	bySource := make(map[string]*census.Wide, len(sources))
	res, err := p.track(ctx, StagePercentages, rowsIn, func() (*table.Table, error) {
		var stacked []*table.Table
		for _, src := range sources {
			wide, err := p.aggregateSource(in.Sources[src], src, in, excluded)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src, err)
			}
			bySource[src] = wide
			stacked = append(stacked, wide.Table(geoCol).WithColumn(srcCol, func(table.Row) any { return src }))
		}
		return table.Concat(stacked...), nil
	})
	if err != nil {
		return nil, err
	}
	return &PercentageResult{StageResult: res, BySource: bySource}, nil
}

func (p *Pipeline) aggregateSource(t *table.Table, src string, in PercentageInput, excluded map[string]bool) (*census.Wide, error) {
	obs, err := census.ObservationsFromTable(t, src)
	if err != nil {
		return nil, err
	}
	if in.Variables != nil {
		obs = in.Variables.Filter(obs)
	}
	agg, err := census.ComputePercentagesWith(obs, census.Options{
		Order:    census.LexicalSuffixes,
		Excluded: excluded,
		Debug:    p.debug,
	})
	if err != nil {
		return nil, err
	}
	pct, err := census.Pivot(agg.Percentages)
	if err != nil {
		return nil, err
	}
	raw, err := census.Pivot(agg.Passthrough)
	if err != nil {
		return nil, err
	}
	merged, err := census.ReconcileWithReference(pct, raw, in.Reference)
	if err != nil {
		return nil, err
	}
	return merged.Drop(in.Drop...), nil
}

// Attach joins job rows with the demographics of their tract and source
func (p *Pipeline) Attach(ctx context.Context, jobs *table.Table, geoColumn, sourceColumn string, bySource map[string]*census.Wide) (*StageResult, error) {
	return p.track(ctx, StageAttach, jobs.Len(), func() (*table.Table, error) {
		return census.AttachToJobs(jobs, geoColumn, sourceColumn, bySource)
	})
}

// PrepareMatchInputs keeps certified applications with cleaned employer
// columns and the registry records loaded after cutoff. Text load dates are
// parsed first; unparseable ones become null.
func PrepareMatchInputs(apps, registry *table.Table, cols violations.RegistryColumns, cutoff time.Time) (left, right *table.Table, err error) {
	if registry.Has(cols.LoadDate) {
		registry, err = registry.Coerce(map[string]table.Kind{cols.LoadDate: table.KindTime}, true)
		if err != nil {
			return nil, nil, err
		}
	}
	left, err = disclosure.CertifiedOnly(apps)
	if err != nil {
		return nil, nil, err
	}
	left, err = disclosure.CleanEmployers(left)
	if err != nil {
		return nil, nil, err
	}
	right, err = violations.PrepareRegistry(registry, cols, cutoff)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// CorrectSpellings rewrites misspelled values of right's column to the
// spellings seen in left's column, so blocking and scoring compare like
// with like. cfg may be nil.
func CorrectSpellings(left, right *table.Table, column string, cfg *symspell.Config) (*table.Table, []symspell.Correction, error) {
	corrector, err := symspell.FromColumns(cfg, column, left)
	if err != nil {
		return nil, nil, err
	}
	return corrector.CorrectColumn(right, column)
}

// MatchResult carries the matcher output alongside the audited stage
type MatchResult struct {
	*StageResult
	Match *match.Result
}

// Match runs the fuzzy matcher over prepared inputs
func (p *Pipeline) Match(ctx context.Context, left, right *table.Table, opts match.Options) (*MatchResult, error) {
	opts.Debug = opts.Debug || p.debug
	var result *match.Result
	res, err := p.track(ctx, StageMatch, left.Len()+right.Len(), func() (*table.Table, error) {
		var err error
		result, err = match.FuzzyMatch(left, right, opts)
		if err != nil {
			return nil, err
		}
		return result.Table, nil
	})
	if err != nil {
		return nil, err
	}
	return &MatchResult{StageResult: res, Match: result}, nil
}

// LabelInput is one labelling request. LoadSource, when set and the load
// date column is missing, is copied into Columns.LoadDate.
type LabelInput struct {
	Applications *table.Table
	Matches      *table.Table
	Mode         violations.Mode
	Columns      violations.Columns
	LoadSource   string
	AppName      string
	MatchedName  string
	LabelColumn  string
}

// Label subsets the matches to the mode's outcome and marks applications
// whose employer is among them
func (p *Pipeline) Label(ctx context.Context, in LabelInput) (*StageResult, error) {
	return p.track(ctx, StageLabel, in.Applications.Len(), func() (*table.Table, error) {
		matches := in.Matches
		cols := in.Columns
		if !matches.Has(cols.LoadDate) && in.LoadSource != "" && matches.Has(in.LoadSource) {
			matches = matches.WithColumn(cols.LoadDate, func(r table.Row) any { return r[in.LoadSource] })
		}

		kinds := map[string]table.Kind{}
		for col, kind := range map[string]table.Kind{
			cols.LoadDate:       table.KindTime,
			cols.JobStart:       table.KindTime,
			cols.ViolationCount: table.KindFloat,
		} {
			if matches.Has(col) {
				kinds[col] = kind
			}
		}
		matches, err := matches.Coerce(kinds, true)
		if err != nil {
			return nil, err
		}

		outcome, err := violations.FilterDebug(p.debug, matches, in.Mode, cols)
		if err != nil {
			return nil, err
		}
		return violations.Label(in.Applications, in.AppName, outcome, in.MatchedName, in.LabelColumn)
	})
}

// RepresentInput is one representative-record request
type RepresentInput struct {
	Table   *table.Table
	GroupBy string
	Kinds   map[string]table.Kind
	Layouts []string
}

// Represent coerces typed columns and collapses each group to one row
func (p *Pipeline) Represent(ctx context.Context, in RepresentInput) (*StageResult, error) {
	return p.track(ctx, StageRepresent, in.Table.Len(), func() (*table.Table, error) {
		typed := in.Table
		if len(in.Kinds) > 0 {
			var err error
			typed, err = in.Table.Coerce(in.Kinds, true, in.Layouts...)
			if err != nil {
				return nil, err
			}
		}
		return represent.FormRepresentativesWith(typed, in.GroupBy, represent.Options{Debug: p.debug})
	})
}
