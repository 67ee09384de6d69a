package symspell

import (
	"sort"
	"strings"

	"github.com/h2a-linkage/internal/match"
)

// SymSpell is a term dictionary indexed by deletion variants
type SymSpell struct {
	dictionary map[string]int64
	deletes    map[string][]string
	config     *Config
}

// New creates an empty dictionary
func New(config *Config) *SymSpell {
	if config == nil {
		config = DefaultConfig()
	}
	return &SymSpell{
		dictionary: make(map[string]int64),
		deletes:    make(map[string][]string),
		config:     config,
	}
}

// BuildFromEntries builds a dictionary from counted terms
func BuildFromEntries(entries []Entry, config *Config) *SymSpell {
	s := New(config)
	for _, e := range entries {
		s.AddTerm(e.Term, e.Frequency)
	}
	return s
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToUpper(term)), " ")
}

// AddTerm adds frequency occurrences of term. Terms below the configured
// length are ignored; frequency below MinFrequency is kept but not indexed
// until more occurrences arrive.
func (s *SymSpell) AddTerm(term string, frequency int64) {
	term = normalizeTerm(term)
	if len([]rune(term)) < s.config.MinTermLength {
		return
	}

	before, known := s.dictionary[term]
	s.dictionary[term] = before + frequency
	wasIndexed := known && before >= s.config.MinFrequency
	if wasIndexed || s.dictionary[term] < s.config.MinFrequency {
		return
	}

	s.deletes[term] = append(s.deletes[term], term)
	for _, del := range deletions(term, s.config.MaxEditDistance) {
		s.deletes[del] = append(s.deletes[del], term)
	}
}

// Contains reports whether term is an indexed dictionary term
func (s *SymSpell) Contains(term string) bool {
	f, ok := s.dictionary[normalizeTerm(term)]
	return ok && f >= s.config.MinFrequency
}

// Lookup returns dictionary terms within maxDistance of input, closest
// first, then most frequent, then alphabetical
func (s *SymSpell) Lookup(input string, maxDistance int) []Suggestion {
	input = normalizeTerm(input)
	if input == "" {
		return nil
	}
	maxDistance = min(maxDistance, s.config.MaxEditDistance)

	if s.Contains(input) {
		return []Suggestion{{Term: input, Distance: 0, Frequency: s.dictionary[input]}}
	}

	seen := make(map[string]bool)
	var candidates []Suggestion
	variants := append(deletions(input, maxDistance), input)
	for _, v := range variants {
		for _, term := range s.deletes[v] {
			if seen[term] {
				continue
			}
			seen[term] = true
			dist := match.DamerauLevenshteinDistance(input, term)
			if dist <= maxDistance {
				candidates = append(candidates, Suggestion{Term: term, Distance: dist, Frequency: s.dictionary[term]})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Term < b.Term
	})
	return candidates
}

// LookupBest returns the single best suggestion, or nil if none is within
// the edit budget
func (s *SymSpell) LookupBest(input string, maxDistance int) *Suggestion {
	suggestions := s.Lookup(input, maxDistance)
	if len(suggestions) == 0 {
		return nil
	}
	return &suggestions[0]
}

// deletions returns every distinct string reachable from term by deleting
// up to distance runes
func deletions(term string, distance int) []string {
	if distance <= 0 {
		return nil
	}
	found := make(map[string]bool)
	var walk func(r []rune, left int)
	walk = func(r []rune, left int) {
		if left == 0 || len(r) <= 1 {
			return
		}
		for i := range r {
			del := string(r[:i]) + string(r[i+1:])
			if found[del] {
				continue
			}
			found[del] = true
			walk([]rune(del), left-1)
		}
	}
	walk([]rune(term), distance)

	out := make([]string, 0, len(found))
	for d := range found {
		out = append(out, d)
	}
	return out
}

// Stats returns dictionary statistics
func (s *SymSpell) Stats() Stats {
	stats := Stats{DeleteCount: len(s.deletes)}
	for _, freq := range s.dictionary {
		if freq < s.config.MinFrequency {
			continue
		}
		stats.TermCount++
		stats.TotalFrequency += freq
		stats.MaxFrequency = max(stats.MaxFrequency, freq)
	}
	return stats
}
