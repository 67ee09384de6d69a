package schema

import (
	"strings"

	"github.com/h2a-linkage/internal/table"
)

// Concat builds Target by joining Sources with Sep. Year 0 applies to every
// year that carries all the sources. Null sources contribute empty strings.
type Concat struct {
	Year    int
	Target  string
	Sources []string
	Sep     string
}

// Derive returns copies of the sets with derived columns added. A set that
// already has the target column raw is a conflict.
func Derive(sets []YearlyRecordSet, derivations []Concat) ([]YearlyRecordSet, error) {
	out := make([]YearlyRecordSet, len(sets))
	for i, set := range sets {
		cols := make(map[string]bool, len(set.Columns))
		for _, c := range set.Columns {
			cols[c] = true
		}

		var apply []Concat
		for _, d := range derivations {
			if d.Year != 0 && d.Year != set.Year {
				continue
			}
			if !hasAll(cols, d.Sources) {
				continue
			}
			if cols[d.Target] {
				return nil, &SchemaConflictError{Year: set.Year, Field: d.Target, Columns: append([]string{d.Target}, d.Sources...)}
			}
			apply = append(apply, d)
		}

		next := YearlyRecordSet{Year: set.Year, Columns: append([]string(nil), set.Columns...)}
		for _, d := range apply {
			next.Columns = append(next.Columns, d.Target)
		}
		next.Rows = make([]table.Row, len(set.Rows))
		for j, r := range set.Rows {
			nr := r.Clone()
			for _, d := range apply {
				parts := make([]string, len(d.Sources))
				for k, src := range d.Sources {
					parts[k], _ = table.String(r[src])
				}
				nr[d.Target] = strings.Join(parts, d.Sep)
			}
			next.Rows[j] = nr
		}
		out[i] = next
	}
	return out, nil
}

func hasAll(cols map[string]bool, names []string) bool {
	for _, n := range names {
		if !cols[n] {
			return false
		}
	}
	return len(names) > 0
}
