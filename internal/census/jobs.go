package census

import (
	"fmt"
	"sort"

	"github.com/h2a-linkage/internal/table"
)

// AttachToJobs left-joins job rows with the demographics of their tract for
// the matching data source. bySource maps a provenance tag (file_2014, ...)
// to that year's reconciled wide table. Job geography keys are normalised
// before joining; jobs without demographics keep null columns.
func AttachToJobs(jobs *table.Table, geoColumn, sourceColumn string, bySource map[string]*Wide) (*table.Table, error) {
	if !jobs.Has(geoColumn) || !jobs.Has(sourceColumn) {
		return nil, fmt.Errorf("census: jobs table needs %q and %q columns", geoColumn, sourceColumn)
	}

	normalized := jobs.Clone()
	for i, r := range normalized.Rows {
		s, ok := table.String(r[geoColumn])
		if !ok {
			continue
		}
		key, err := NormalizeKey(s)
		if err != nil {
			return nil, fmt.Errorf("census: job row %d: %w", i, err)
		}
		r[geoColumn] = key
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var valueCols []string
	seen := make(map[string]bool)
	for _, s := range sources {
		for _, c := range bySource[s].Columns {
			if !seen[c] {
				seen[c] = true
				valueCols = append(valueCols, c)
			}
		}
	}

	stacked := table.New(append([]string{geoColumn, sourceColumn}, valueCols...)...)
	for _, s := range sources {
		w := bySource[s]
		for _, k := range w.Keys {
			r := table.Row{geoColumn: k, sourceColumn: s}
			for _, c := range valueCols {
				if v, _ := w.Value(k, c); v != nil {
					r[c] = *v
				} else {
					r[c] = nil
				}
			}
			stacked.Append(r)
		}
	}

	return table.LeftJoin(normalized, stacked, geoColumn, sourceColumn)
}
