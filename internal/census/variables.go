package census

import (
	"fmt"
	"strings"

	"github.com/h2a-linkage/internal/table"
)

// DefaultPercentNotApplicable lists ACS estimates (medians, aggregates,
// single-cell tables) for which a share of the table total is meaningless
var DefaultPercentNotApplicable = []string{
	"B05004_001E", "B05004_013E", "B05004_014E", "B05004_015E", "B06011_001E",
	"B19113_001E", "B20004_001E", "B22008_001E", "B24031_002E", "B24041_002E", "B24121_017E",
}

// labelPrefix is stripped from ACS labels when building detailed names
const labelPrefix = "Estimate!!Total!!"

// Variable describes one ACS variable
type Variable struct {
	Name                 string
	Label                string
	Concept              string
	PercentNotApplicable bool
}

// Variables is the caller-supplied variable metadata table
type Variables struct {
	byName map[string]Variable
	order  []string
}

// NewVariables indexes variables by name; a later duplicate replaces an
// earlier one
func NewVariables(vars ...Variable) *Variables {
	v := &Variables{byName: make(map[string]Variable)}
	for _, x := range vars {
		if _, ok := v.byName[x.Name]; !ok {
			v.order = append(v.order, x.Name)
		}
		v.byName[x.Name] = x
	}
	return v
}

// VariablesFromTable reads name/label/concept columns and an optional perc_na
// flag column. suffix is appended to every name (the API wants "E" for
// estimates). Names in DefaultPercentNotApplicable are always flagged.
func VariablesFromTable(t *table.Table, suffix string) (*Variables, error) {
	if !t.Has("name") {
		return nil, fmt.Errorf("census: variable table has no name column")
	}
	defaults := make(map[string]bool, len(DefaultPercentNotApplicable))
	for _, n := range DefaultPercentNotApplicable {
		defaults[n] = true
	}

	var vars []Variable
	for _, r := range t.Rows {
		name, ok := table.String(r["name"])
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if suffix != "" && !strings.HasSuffix(name, suffix) {
			name += suffix
		}
		label, _ := table.String(r["label"])
		concept, _ := table.String(r["concept"])
		flag, _ := table.String(r["perc_na"])
		vars = append(vars, Variable{
			Name:                 name,
			Label:                label,
			Concept:              concept,
			PercentNotApplicable: defaults[name] || truthy(flag),
		})
	}
	return NewVariables(vars...), nil
}

// Get looks a variable up by full code
func (v *Variables) Get(name string) (Variable, bool) {
	x, ok := v.byName[name]
	return x, ok
}

// Len returns the number of variables
func (v *Variables) Len() int { return len(v.order) }

// Filter keeps observations whose variable is described. Unknown variables
// are dropped, as an inner join on the metadata would.
func (v *Variables) Filter(obs []Observation) []Observation {
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if _, ok := v.byName[o.Variable()]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Excluded returns the codes flagged percent-not-applicable
func (v *Variables) Excluded() map[string]bool {
	out := make(map[string]bool)
	for _, n := range v.order {
		if v.byName[n].PercentNotApplicable {
			out[n] = true
		}
	}
	return out
}

// DetailedName joins code, label and concept into a readable column name
func (v *Variables) DetailedName(name string) string {
	x, ok := v.byName[name]
	if !ok {
		return name
	}
	label := strings.ReplaceAll(x.Label, labelPrefix, "")
	return strings.Join([]string{x.Name, label, x.Concept}, "_")
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "y", "true":
		return true
	}
	return false
}
