package match

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/h2a-linkage/internal/debug"
	"github.com/h2a-linkage/internal/table"
)

// block is one blocking value with the rows of both sides that carry it
type block struct {
	key    string
	lefts  []int
	rights []int
}

// FuzzyMatch compares every left and right row that share the blocking key
// and accepts a pair when every field pair scores at least the threshold
func FuzzyMatch(left, right *table.Table, opts Options) (*Result, error) {
	if len(opts.LeftFields) != len(opts.RightFields) {
		return nil, &MismatchedArityError{Left: len(opts.LeftFields), Right: len(opts.RightFields)}
	}
	if len(opts.LeftBlock) != len(opts.RightBlock) {
		return nil, &MismatchedArityError{Left: len(opts.LeftBlock), Right: len(opts.RightBlock)}
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	method := opts.Method
	if method == "" {
		method = string(JaroWinkler)
	}
	sim, err := Lookup(method)
	if err != nil {
		return nil, err
	}
	if err := checkColumns("left", left, opts.LeftBlock, opts.LeftFields, opts.ProjectLeft); err != nil {
		return nil, err
	}
	if err := checkColumns("right", right, opts.RightBlock, opts.RightFields, opts.ProjectRight); err != nil {
		return nil, err
	}

	debug.DebugHeader(opts.Debug, "FUZZY MATCH")
	defer debug.DebugFooter(opts.Debug, "FUZZY MATCH")
	done := debug.DebugTiming(opts.Debug, "blocked comparison")

	blocks := buildBlocks(left, right, opts.LeftBlock, opts.RightBlock)
	candidates := 0
	for _, b := range blocks {
		candidates += len(b.lefts) * len(b.rights)
	}
	debug.DebugOutput(opts.Debug, "%d blocks, %d candidate pairs using %s", len(blocks), candidates, method)
	if candidates == 0 {
		return nil, &EmptyBlockError{LeftBlock: opts.LeftBlock, RightBlock: opts.RightBlock}
	}

	compared := make([][]CandidateLinkPair, len(blocks))
	var g errgroup.Group
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, b := range blocks {
		i, b := i, b
		g.Go(func() error {
			compared[i] = compareBlock(left, right, b, opts, sim)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	done()

	res := &Result{Candidates: candidates, Blocks: len(blocks)}
	for _, pairs := range compared {
		for _, p := range pairs {
			if p.Passed {
				res.Pairs = append(res.Pairs, p)
			}
			if opts.KeepCandidates {
				res.All = append(res.All, p)
			}
		}
	}
	sortPairs(res.Pairs)
	sortPairs(res.All)
	debug.DebugCounts(opts.Debug, "accepted pairs", candidates, len(res.Pairs))

	res.Table = pairTable(left, right, res.Pairs, opts)
	return res, nil
}

func checkColumns(side string, t *table.Table, groups ...[]string) error {
	for _, cols := range groups {
		for _, c := range cols {
			if !t.Has(c) {
				return &MissingColumnError{Side: side, Column: c}
			}
		}
	}
	return nil
}

// buildBlocks indexes the right rows by block value and walks the left rows
// in order, so blocks come out in first-seen left order
func buildBlocks(left, right *table.Table, leftKey, rightKey []string) []*block {
	rightIndex := make(map[string][]int)
	for i, r := range right.Rows {
		if k, ok := table.Key(r, rightKey); ok {
			rightIndex[k] = append(rightIndex[k], i)
		}
	}

	byKey := make(map[string]*block)
	var blocks []*block
	for i, r := range left.Rows {
		k, ok := table.Key(r, leftKey)
		if !ok {
			continue
		}
		rights, ok := rightIndex[k]
		if !ok {
			continue
		}
		b, seen := byKey[k]
		if !seen {
			b = &block{key: k, rights: rights}
			byKey[k] = b
			blocks = append(blocks, b)
		}
		b.lefts = append(b.lefts, i)
	}
	return blocks
}

func compareBlock(left, right *table.Table, b *block, opts Options, sim SimilarityFunc) []CandidateLinkPair {
	out := make([]CandidateLinkPair, 0, len(b.lefts)*len(b.rights))
	for _, li := range b.lefts {
		lrow := left.Rows[li]
		for _, ri := range b.rights {
			rrow := right.Rows[ri]
			p := CandidateLinkPair{Left: li, Right: ri, Scores: make([]float64, len(opts.LeftFields)), Passed: true}
			for f := range opts.LeftFields {
				p.Scores[f] = score(lrow[opts.LeftFields[f]], rrow[opts.RightFields[f]], sim)
				if p.Scores[f] < opts.Threshold {
					p.Passed = false
				}
			}
			out = append(out, p)
		}
	}
	return out
}

// score treats null and empty values as missing, which never match
func score(a, b any, sim SimilarityFunc) float64 {
	sa, ok := table.String(a)
	if !ok || sa == "" {
		return 0
	}
	sb, ok := table.String(b)
	if !ok || sb == "" {
		return 0
	}
	return sim(sa, sb)
}

func sortPairs(pairs []CandidateLinkPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Left != pairs[j].Left {
			return pairs[i].Left < pairs[j].Left
		}
		return pairs[i].Right < pairs[j].Right
	})
}

// scoreColumns names each field pair's score after its left field, or after
// both fields when the left field is scored more than once
func scoreColumns(leftFields, rightFields []string) []string {
	uses := make(map[string]int, len(leftFields))
	for _, f := range leftFields {
		uses[f]++
	}
	cols := make([]string, len(leftFields))
	for i, f := range leftFields {
		cols[i] = ScorePrefix + f
		if uses[f] > 1 {
			cols[i] += "_" + rightFields[i]
		}
	}
	return cols
}

// pairTable joins the projections of both sides onto each accepted pair.
// A projected name present on both sides gets the _left/_right suffix.
func pairTable(left, right *table.Table, pairs []CandidateLinkPair, opts Options) *table.Table {
	inRight := make(map[string]bool, len(opts.ProjectRight))
	for _, c := range opts.ProjectRight {
		inRight[c] = true
	}
	inLeft := make(map[string]bool, len(opts.ProjectLeft))
	for _, c := range opts.ProjectLeft {
		inLeft[c] = true
	}

	columns := []string{IndexLeft, IndexRight}
	scoreCols := scoreColumns(opts.LeftFields, opts.RightFields)
	columns = append(columns, scoreCols...)
	leftNames := make([]string, len(opts.ProjectLeft))
	for i, c := range opts.ProjectLeft {
		leftNames[i] = c
		if inRight[c] {
			leftNames[i] = c + table.LeftSuffix
		}
		columns = append(columns, leftNames[i])
	}
	rightNames := make([]string, len(opts.ProjectRight))
	for i, c := range opts.ProjectRight {
		rightNames[i] = c
		if inLeft[c] {
			rightNames[i] = c + table.RightSuffix
		}
		columns = append(columns, rightNames[i])
	}

	out := table.New(columns...)
	for _, p := range pairs {
		row := make(table.Row, len(columns))
		row[IndexLeft] = p.Left
		row[IndexRight] = p.Right
		for i, s := range p.Scores {
			row[scoreCols[i]] = s
		}
		for i, c := range opts.ProjectLeft {
			row[leftNames[i]] = left.Rows[p.Left][c]
		}
		for i, c := range opts.ProjectRight {
			row[rightNames[i]] = right.Rows[p.Right][c]
		}
		out.Append(row)
	}
	return out
}
