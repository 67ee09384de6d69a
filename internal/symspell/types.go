// Package symspell corrects misspelled place names against a dictionary of
// known spellings using the symmetric delete algorithm: every term is
// indexed under all of its deletions within the edit budget, so a lookup
// only compares against terms that share a deletion with the input.
package symspell

// Config holds the correction parameters
type Config struct {
	// MaxEditDistance is the largest Damerau-Levenshtein distance corrected
	MaxEditDistance int

	// MinTermLength skips short values such as state codes
	MinTermLength int

	// MinFrequency drops dictionary terms seen fewer times
	MinFrequency int64
}

// DefaultConfig returns the settings used for city names
func DefaultConfig() *Config {
	return &Config{
		MaxEditDistance: 2,
		MinTermLength:   4,
		MinFrequency:    1,
	}
}

// Suggestion is a dictionary term close to a lookup input
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int64
}

// Correction records one value that was rewritten
type Correction struct {
	Row       int    `json:"row"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Distance  int    `json:"distance"`
}

// Entry is a term with its occurrence count
type Entry struct {
	Term      string
	Frequency int64
}

// Stats describes a built dictionary
type Stats struct {
	TermCount      int
	DeleteCount    int
	TotalFrequency int64
	MaxFrequency   int64
}
