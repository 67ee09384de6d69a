package census

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/h2a-linkage/internal/table"
)

// Observation is one long-format demographic count
type Observation struct {
	GeoKey string
	Prefix string
	Suffix string
	Value  *float64
	Source string
}

// Variable returns the full variable code, prefix_suffix
func (o Observation) Variable() string {
	return o.Prefix + "_" + o.Suffix
}

// SplitVariable splits a code like B01001_002E at its first underscore
func SplitVariable(name string) (prefix, suffix string, ok bool) {
	i := strings.Index(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// reVariable matches ACS detailed-table variable columns
var reVariable = regexp.MustCompile(`^[A-Z]+[0-9]+[A-Z]*_[0-9]+[A-Z]*$`)

// ObservationsFromTable melts a wide API pull into observations. The
// geography comes from GEO_ID when present, otherwise from the state, county
// and tract columns. Variable columns are recognised by their code shape; all
// other columns (NAME, ...) are ignored. Non-numeric cells become null.
func ObservationsFromTable(t *table.Table, source string) ([]Observation, error) {
	var vars []string
	for _, c := range t.Columns {
		if reVariable.MatchString(c) {
			vars = append(vars, c)
		}
	}
	useGeoID := t.Has("GEO_ID")
	if !useGeoID && !(t.Has("state") && t.Has("county") && t.Has("tract")) {
		return nil, fmt.Errorf("census: table has neither GEO_ID nor state/county/tract columns")
	}

	out := make([]Observation, 0, len(t.Rows)*len(vars))
	for _, r := range t.Rows {
		var (
			geo GeoID
			err error
		)
		if useGeoID {
			key, _ := table.String(r["GEO_ID"])
			geo, err = ParseGeoID(key)
		} else {
			st, _ := table.String(r["state"])
			co, _ := table.String(r["county"])
			tr, _ := table.String(r["tract"])
			geo, err = GeoIDFromParts(st, co, tr)
		}
		if err != nil {
			return nil, err
		}

		for _, v := range vars {
			prefix, suffix, _ := SplitVariable(v)
			obs := Observation{GeoKey: geo.String(), Prefix: prefix, Suffix: suffix, Source: source}
			if f, ok := table.Float(r[v]); ok {
				obs.Value = &f
			}
			out = append(out, obs)
		}
	}
	return out, nil
}
