package violations

import (
	"fmt"
	"strings"

	"github.com/h2a-linkage/internal/debug"
	"github.com/h2a-linkage/internal/table"
)

// Mode selects which matched registry records count as an outcome
type Mode int

const (
	// PredictInvestigations keeps every investigation opened after the job started
	PredictInvestigations Mode = iota
	// PredictViolations additionally requires at least one recorded violation
	PredictViolations
)

func (m Mode) String() string {
	switch m {
	case PredictInvestigations:
		return "predict_investigations"
	case PredictViolations:
		return "predict_violations"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts the mode names with or without the predict_ prefix
func ParseMode(s string) (Mode, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "predict_") {
	case "investigations":
		return PredictInvestigations, nil
	case "violations", "":
		return PredictViolations, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Columns names the fields Filter reads
type Columns struct {
	LoadDate       string
	JobStart       string
	ViolationCount string
}

// DefaultColumns are the registry and disclosure column names
var DefaultColumns = Columns{
	LoadDate:       "load_date_cleaned",
	JobStart:       "JOB_START_DATE",
	ViolationCount: "h2a_violtn_cnt",
}

// Filter keeps matched rows whose registry load date is on or after the job
// start date. PredictViolations also requires a violation count of at least
// one. Rows with a missing date or count are dropped.
func Filter(matches *table.Table, mode Mode, cols Columns) (*table.Table, error) {
	return FilterDebug(false, matches, mode, cols)
}

// FilterDebug is Filter with debug output
func FilterDebug(localDebug bool, matches *table.Table, mode Mode, cols Columns) (*table.Table, error) {
	required := []string{cols.LoadDate, cols.JobStart}
	if mode == PredictViolations {
		required = append(required, cols.ViolationCount)
	}
	for _, c := range required {
		if !matches.Has(c) {
			return nil, fmt.Errorf("filter %s: column %q not found", mode, c)
		}
	}

	out := matches.Filter(func(r table.Row) bool {
		loaded, ok := table.Time(r[cols.LoadDate])
		if !ok {
			return false
		}
		start, ok := table.Time(r[cols.JobStart])
		if !ok || loaded.Before(start) {
			return false
		}
		if mode == PredictInvestigations {
			return true
		}
		n, ok := table.Float(r[cols.ViolationCount])
		return ok && n >= 1
	})
	debug.DebugCounts(localDebug, "subsetting to "+mode.String(), matches.Len(), out.Len())
	return out, nil
}

// Label adds labelColumn to apps: 1 when the row's name appears in the
// matchedName column of matched, 0 otherwise
func Label(apps *table.Table, name string, matched *table.Table, matchedName, labelColumn string) (*table.Table, error) {
	if !apps.Has(name) {
		return nil, fmt.Errorf("label: column %q not found", name)
	}
	if !matched.Has(matchedName) {
		return nil, fmt.Errorf("label: matched column %q not found", matchedName)
	}

	names := make(map[string]bool)
	for _, v := range matched.Column(matchedName) {
		if s, ok := table.String(v); ok {
			names[s] = true
		}
	}
	return apps.WithColumn(labelColumn, func(r table.Row) any {
		if s, ok := table.String(r[name]); ok && names[s] {
			return 1
		}
		return 0
	}), nil
}
