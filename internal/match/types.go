package match

import "github.com/h2a-linkage/internal/table"

// Output columns of the pair table
const (
	IndexLeft   = "index_left"
	IndexRight  = "index_right"
	ScorePrefix = "score_"
)

// Options configures FuzzyMatch
type Options struct {
	// LeftBlock and RightBlock are compared for exact equality. Rows with a
	// null block value never become candidates.
	LeftBlock  []string
	RightBlock []string

	// LeftFields[i] is scored against RightFields[i]
	LeftFields  []string
	RightFields []string

	Method    string  // similarity method, default jarowinkler
	Threshold float64 // every field pair must score at least this

	ProjectLeft  []string
	ProjectRight []string

	Workers        int  // parallel blocks, 0 or 1 means sequential
	KeepCandidates bool // keep failing pairs in Result.All
	Debug          bool
}

// CandidateLinkPair is one compared left/right row pair
type CandidateLinkPair struct {
	Left   int       `json:"left"`
	Right  int       `json:"right"`
	Scores []float64 `json:"scores"`
	Passed bool      `json:"passed"`
}

// Result of a match run
type Result struct {
	Pairs      []CandidateLinkPair // accepted pairs ordered by (Left, Right)
	All        []CandidateLinkPair // every candidate when KeepCandidates is set
	Candidates int                 // number of compared pairs
	Blocks     int                 // number of blocks with candidates on both sides
	Table      *table.Table        // accepted pairs joined with the projections
}
