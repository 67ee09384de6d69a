package schema

import "sort"

// YearDelta lists column changes of one year against the previous year
type YearDelta struct {
	Year    int      `json:"year"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// DiffReport is the column diagnostic across consecutive years
type DiffReport struct {
	Intersecting  []string    `json:"intersecting"`
	UniqueToFirst []string    `json:"unique_to_first"`
	Deltas        []YearDelta `json:"deltas"`
}

// Diff compares column sets across years in year order. When aliases is non
// nil the comparison runs on resolved names, so calling it with and without
// aliases shows what renaming bought. Duplicate columns are not checked here.
func Diff(sets []YearlyRecordSet, aliases *Aliases) DiffReport {
	ordered := append([]YearlyRecordSet(nil), sets...)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Year < ordered[b].Year })

	colSets := make([]map[string]bool, len(ordered))
	for i, s := range ordered {
		m := make(map[string]bool, len(s.Columns))
		for _, c := range s.Columns {
			if aliases != nil {
				c = aliases.Resolve(s.Year, c)
			}
			m[c] = true
		}
		colSets[i] = m
	}

	var report DiffReport
	if len(colSets) == 0 {
		return report
	}

	for c := range colSets[0] {
		inAll, elsewhere := true, false
		for _, m := range colSets[1:] {
			if m[c] {
				elsewhere = true
			} else {
				inAll = false
			}
		}
		if inAll {
			report.Intersecting = append(report.Intersecting, c)
		}
		if !elsewhere && len(colSets) > 1 {
			report.UniqueToFirst = append(report.UniqueToFirst, c)
		}
	}
	sort.Strings(report.Intersecting)
	sort.Strings(report.UniqueToFirst)

	for i := 1; i < len(colSets); i++ {
		d := YearDelta{
			Year:    ordered[i].Year,
			Added:   difference(colSets[i], colSets[i-1]),
			Removed: difference(colSets[i-1], colSets[i]),
		}
		report.Deltas = append(report.Deltas, d)
	}
	return report
}

func difference(a, b map[string]bool) []string {
	var out []string
	for c := range a {
		if !b[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
