package schema

import (
	"sort"

	"github.com/h2a-linkage/internal/debug"
	"github.com/h2a-linkage/internal/table"
)

// Reconcile folds yearly record sets into one canonical record set
func Reconcile(sets []YearlyRecordSet, aliases Aliases, policy Policy) (*CanonicalRecordSet, error) {
	return ReconcileDebug(false, sets, aliases, policy)
}

// ReconcileDebug is Reconcile with optional debug output
func ReconcileDebug(localDebug bool, sets []YearlyRecordSet, aliases Aliases, policy Policy) (*CanonicalRecordSet, error) {
	debug.DebugHeader(localDebug, "reconcile")
	defer debug.DebugFooter(localDebug, "reconcile")

	if len(sets) == 0 {
		return nil, ErrEmptyInput
	}

	ordered := make([]int, len(sets))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return sets[ordered[a]].Year < sets[ordered[b]].Year
	})

	// raw -> canonical per set, in source column order
	renames := make([][]fieldRename, len(sets))
	for _, i := range ordered {
		r, err := renameColumns(sets[i], aliases)
		if err != nil {
			return nil, err
		}
		renames[i] = r
		debug.DebugOutput(localDebug, "year %d: %d columns, %d rows", sets[i].Year, len(r), len(sets[i].Rows))
	}

	fields := canonicalFields(ordered, renames, policy)
	debug.DebugOutput(localDebug, "%s policy keeps %d fields", policy, len(fields))

	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	out := &CanonicalRecordSet{Policy: policy, Fields: fields}
	for _, i := range ordered {
		set := sets[i]
		for _, raw := range set.Rows {
			values := make(table.Row, len(fields))
			for _, fr := range renames[i] {
				if keep[fr.canonical] {
					values[fr.canonical] = raw[fr.raw]
				}
			}
			if policy == FillNull {
				for _, f := range fields {
					if _, ok := values[f]; !ok {
						values[f] = nil
					}
				}
			}
			out.Rows = append(out.Rows, CanonicalRow{Year: set.Year, Values: values})
		}
	}

	debug.DebugCounts(localDebug, "reconcile", countRows(sets), len(out.Rows))
	return out, nil
}

type fieldRename struct {
	raw       string
	canonical string
}

func renameColumns(set YearlyRecordSet, aliases Aliases) ([]fieldRename, error) {
	seenRaw := make(map[string]bool, len(set.Columns))
	owner := make(map[string]string, len(set.Columns))
	out := make([]fieldRename, 0, len(set.Columns))
	for _, raw := range set.Columns {
		if seenRaw[raw] {
			return nil, &SchemaConflictError{Year: set.Year, Field: raw, Columns: []string{raw, raw}}
		}
		seenRaw[raw] = true

		canonical := aliases.Resolve(set.Year, raw)
		if prev, ok := owner[canonical]; ok {
			return nil, &SchemaConflictError{Year: set.Year, Field: canonical, Columns: []string{prev, raw}}
		}
		owner[canonical] = raw
		out = append(out, fieldRename{raw: raw, canonical: canonical})
	}
	return out, nil
}

// canonicalFields keeps the first year's column order for Intersect and
// first-appearance order across years for FillNull
func canonicalFields(ordered []int, renames [][]fieldRename, policy Policy) []string {
	var fields []string
	if policy == FillNull {
		seen := make(map[string]bool)
		for _, i := range ordered {
			for _, fr := range renames[i] {
				if !seen[fr.canonical] {
					seen[fr.canonical] = true
					fields = append(fields, fr.canonical)
				}
			}
		}
		return fields
	}

	counts := make(map[string]int)
	for _, i := range ordered {
		for _, fr := range renames[i] {
			counts[fr.canonical]++
		}
	}
	for _, fr := range renames[ordered[0]] {
		if counts[fr.canonical] == len(ordered) {
			fields = append(fields, fr.canonical)
		}
	}
	return fields
}

func countRows(sets []YearlyRecordSet) int {
	n := 0
	for _, s := range sets {
		n += len(s.Rows)
	}
	return n
}
