package symspell

import (
	"fmt"
	"regexp"

	"github.com/h2a-linkage/internal/table"
)

// Corrector rewrites values of a column to their dictionary spelling
type Corrector struct {
	symspell *SymSpell
	config   *Config
}

// NewCorrector builds a corrector over counted entries
func NewCorrector(entries []Entry, config *Config) *Corrector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Corrector{symspell: BuildFromEntries(entries, config), config: config}
}

// FromColumns builds a corrector whose dictionary is every non-null value
// of the named column, counted across the tables
func FromColumns(config *Config, column string, tables ...*table.Table) (*Corrector, error) {
	counts := make(map[string]int64)
	var order []string
	for _, t := range tables {
		if !t.Has(column) {
			return nil, fmt.Errorf("symspell: column %q not found", column)
		}
		for _, v := range t.Column(column) {
			s, ok := table.String(v)
			if !ok {
				continue
			}
			s = normalizeTerm(s)
			if counts[s] == 0 {
				order = append(order, s)
			}
			counts[s]++
		}
	}
	entries := make([]Entry, len(order))
	for i, s := range order {
		entries[i] = Entry{Term: s, Frequency: counts[s]}
	}
	return NewCorrector(entries, config), nil
}

var reNumeric = regexp.MustCompile(`^[0-9 -]+$`)

// Correct returns the dictionary spelling of value. A value is left alone
// when it is already known, too short, numeric, or when the two best
// suggestions are equally good.
func (c *Corrector) Correct(value string) (string, int, bool) {
	norm := normalizeTerm(value)
	if len([]rune(norm)) < c.config.MinTermLength || reNumeric.MatchString(norm) || c.symspell.Contains(norm) {
		return value, 0, false
	}
	suggestions := c.symspell.Lookup(norm, c.config.MaxEditDistance)
	if len(suggestions) == 0 {
		return value, 0, false
	}
	best := suggestions[0]
	if len(suggestions) > 1 {
		next := suggestions[1]
		if next.Distance == best.Distance && next.Frequency == best.Frequency {
			return value, 0, false
		}
	}
	return best.Term, best.Distance, true
}

// CorrectColumn returns a copy of t with the column corrected, plus the
// corrections applied
func (c *Corrector) CorrectColumn(t *table.Table, column string) (*table.Table, []Correction, error) {
	if !t.Has(column) {
		return nil, nil, fmt.Errorf("symspell: column %q not found", column)
	}
	out := t.Clone()
	var corrections []Correction
	for i, r := range out.Rows {
		s, ok := r[column].(string)
		if !ok {
			continue
		}
		fixed, dist, changed := c.Correct(s)
		if !changed {
			continue
		}
		r[column] = fixed
		corrections = append(corrections, Correction{Row: i, Original: s, Corrected: fixed, Distance: dist})
	}
	return out, corrections, nil
}

// Stats returns dictionary statistics
func (c *Corrector) Stats() Stats {
	return c.symspell.Stats()
}
