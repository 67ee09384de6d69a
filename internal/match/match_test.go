package match

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2a-linkage/internal/table"
)

func employers(rows ...[2]string) *table.Table {
	t := table.New("state", "name")
	for _, r := range rows {
		t.Append(table.Row{"state": r[0], "name": r[1]})
	}
	return t
}

func nameOpts() Options {
	return Options{
		LeftBlock:    []string{"state"},
		RightBlock:   []string{"state"},
		LeftFields:   []string{"name"},
		RightFields:  []string{"name"},
		Method:       "jarowinkler",
		Threshold:    0.85,
		ProjectLeft:  []string{"name"},
		ProjectRight: []string{"name"},
	}
}

func TestFuzzyMatchSingleBlock(t *testing.T) {
	left := employers([2]string{"CA", "SUNNY FARMS LLC"}, [2]string{"CA", "BLUE RIVER ORCHARDS"})
	right := employers([2]string{"CA", "SUNNY FARM LLC"}, [2]string{"CA", "GREEN VALLEY DAIRY"})

	res, err := FuzzyMatch(left, right, nameOpts())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, 1, res.Blocks)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 0, res.Pairs[0].Left)
	assert.Equal(t, 0, res.Pairs[0].Right)
	assert.InDelta(t, 0.9867, res.Pairs[0].Scores[0], 1e-3)

	require.Equal(t, 1, res.Table.Len())
	assert.Equal(t, []string{IndexLeft, IndexRight, "score_name", "name_left", "name_right"}, res.Table.Columns)
	assert.Equal(t, "SUNNY FARMS LLC", res.Table.Rows[0]["name_left"])
	assert.Equal(t, "SUNNY FARM LLC", res.Table.Rows[0]["name_right"])
}

func TestFuzzyMatchSymmetric(t *testing.T) {
	left := employers(
		[2]string{"CA", "SUNNY FARMS LLC"},
		[2]string{"CA", "BLUE RIVER ORCHARDS"},
		[2]string{"WA", "GREEN ACRES"},
	)
	right := employers(
		[2]string{"WA", "GREEN ACRES INC"},
		[2]string{"CA", "GREEN VALLEY DAIRY"},
		[2]string{"CA", "SUNNY FARM LLC"},
	)

	forward, err := FuzzyMatch(left, right, nameOpts())
	require.NoError(t, err)
	backward, err := FuzzyMatch(right, left, nameOpts())
	require.NoError(t, err)

	pairs := func(ps []CandidateLinkPair, swap bool) map[[2]int]bool {
		out := make(map[[2]int]bool)
		for _, p := range ps {
			if swap {
				out[[2]int{p.Right, p.Left}] = true
			} else {
				out[[2]int{p.Left, p.Right}] = true
			}
		}
		return out
	}
	assert.Equal(t, map[[2]int]bool{{0, 2}: true, {2, 0}: true}, pairs(forward.Pairs, false))
	assert.Equal(t, pairs(forward.Pairs, false), pairs(backward.Pairs, true))
}

func TestFuzzyMatchConjunctive(t *testing.T) {
	left := table.New("state", "name", "city")
	left.Append(table.Row{"state": "AZ", "name": "SUNNY FARMS LLC", "city": "YUMA"})
	left.Append(table.Row{"state": "AZ", "name": "SUNNY FARMS LLC", "city": "FRESNO"})
	right := table.New("state", "employer", "city")
	right.Append(table.Row{"state": "AZ", "employer": "SUNNY FARM LLC", "city": "YUMA"})

	opts := Options{
		LeftBlock:   []string{"state"},
		RightBlock:  []string{"state"},
		LeftFields:  []string{"name", "city"},
		RightFields: []string{"employer", "city"},
		Threshold:   0.85,
		ProjectLeft: []string{"city"}, ProjectRight: []string{"employer", "city"},
		KeepCandidates: true,
	}
	res, err := FuzzyMatch(left, right, opts)
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 0, res.Pairs[0].Left)
	require.Len(t, res.All, 2)
	assert.False(t, res.All[1].Passed)
	assert.Greater(t, res.All[1].Scores[0], 0.85)
	assert.Less(t, res.All[1].Scores[1], 0.85)

	assert.Equal(t, []string{IndexLeft, IndexRight, "score_name", "score_city", "city_left", "employer", "city_right"}, res.Table.Columns)
}

func TestFuzzyMatchRepeatedLeftField(t *testing.T) {
	left := employers([2]string{"CA", "SUNNY FARMS LLC"})
	right := table.New("state", "name", "trade")
	right.Append(table.Row{"state": "CA", "name": "SUNNY FARMS LLC", "trade": "BLUE RIVER CO"})

	opts := Options{
		LeftBlock:   []string{"state"},
		RightBlock:  []string{"state"},
		LeftFields:  []string{"name", "name"},
		RightFields: []string{"name", "trade"},
		Threshold:   0,
	}
	res, err := FuzzyMatch(left, right, opts)
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)

	assert.Equal(t, []string{IndexLeft, IndexRight, "score_name_name", "score_name_trade"}, res.Table.Columns)
	row := res.Table.Rows[0]
	assert.Equal(t, 1.0, row["score_name_name"])
	assert.Less(t, row["score_name_trade"].(float64), 1.0)
}

func TestFuzzyMatchMissingValuesNeverMatch(t *testing.T) {
	left := employers([2]string{"CA", ""})
	left.Append(table.Row{"state": "CA", "name": nil})
	right := employers([2]string{"CA", ""})

	opts := nameOpts()
	opts.Threshold = 0
	opts.KeepCandidates = true
	res, err := FuzzyMatch(left, right, opts)
	require.NoError(t, err)
	for _, p := range res.All {
		assert.Equal(t, 0.0, p.Scores[0])
	}

	opts.Threshold = 0.01
	res, err = FuzzyMatch(left, right, opts)
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
}

func TestFuzzyMatchNoMatchesIsNotAnError(t *testing.T) {
	left := employers([2]string{"CA", "BLUE RIVER ORCHARDS"})
	right := employers([2]string{"CA", "GREEN VALLEY DAIRY"})

	res, err := FuzzyMatch(left, right, nameOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 0, res.Table.Len())
}

func TestFuzzyMatchErrors(t *testing.T) {
	left := employers([2]string{"CA", "SUNNY FARMS LLC"})
	right := employers([2]string{"TX", "SUNNY FARMS LLC"})

	t.Run("empty block", func(t *testing.T) {
		_, err := FuzzyMatch(left, right, nameOpts())
		var target *EmptyBlockError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, []string{"state"}, target.LeftBlock)
	})

	t.Run("null block values are not candidates", func(t *testing.T) {
		l := table.New("state", "name")
		l.Append(table.Row{"state": nil, "name": "X"})
		r := table.New("state", "name")
		r.Append(table.Row{"state": nil, "name": "X"})
		_, err := FuzzyMatch(l, r, nameOpts())
		var target *EmptyBlockError
		assert.True(t, errors.As(err, &target))
	})

	t.Run("arity", func(t *testing.T) {
		opts := nameOpts()
		opts.RightFields = []string{"name", "state"}
		_, err := FuzzyMatch(left, right, opts)
		var target *MismatchedArityError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, 1, target.Left)
		assert.Equal(t, 2, target.Right)
	})

	t.Run("threshold", func(t *testing.T) {
		opts := nameOpts()
		opts.Threshold = 1.5
		_, err := FuzzyMatch(left, right, opts)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	})

	t.Run("method", func(t *testing.T) {
		opts := nameOpts()
		opts.Method = "soundex"
		_, err := FuzzyMatch(left, right, opts)
		var target *UnknownMethodError
		assert.True(t, errors.As(err, &target))
	})

	t.Run("column", func(t *testing.T) {
		opts := nameOpts()
		opts.ProjectRight = []string{"city"}
		_, err := FuzzyMatch(left, right, opts)
		var target *MissingColumnError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, "right", target.Side)
	})
}

func TestFuzzyMatchWorkersDeterministic(t *testing.T) {
	left := table.New("state", "name")
	right := table.New("state", "name")
	for i := 0; i < 40; i++ {
		st := fmt.Sprintf("S%02d", i%7)
		left.Append(table.Row{"state": st, "name": fmt.Sprintf("FARM %d", i)})
		right.Append(table.Row{"state": st, "name": fmt.Sprintf("FARM %d", i)})
	}

	opts := nameOpts()
	sequential, err := FuzzyMatch(left, right, opts)
	require.NoError(t, err)
	opts.Workers = 4
	parallel, err := FuzzyMatch(left, right, opts)
	require.NoError(t, err)

	assert.Equal(t, 7, parallel.Blocks)
	assert.Equal(t, sequential.Pairs, parallel.Pairs)
	assert.Equal(t, sequential.Table.Rows, parallel.Table.Rows)
	for i := 1; i < len(parallel.Pairs); i++ {
		prev, cur := parallel.Pairs[i-1], parallel.Pairs[i]
		assert.True(t, prev.Left < cur.Left || (prev.Left == cur.Left && prev.Right < cur.Right))
	}
}

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"MARTHA", "MARHTA", 0.9611},
		{"DWAYNE", "DUANE", 0.84},
		{"DIXON", "DICKSONX", 0.8133},
		{"SUNNY FARMS LLC", "SUNNY FARM LLC", 0.9867},
		{"SAME", "SAME", 1},
		{"", "", 0},
		{"ABC", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, JaroWinklerSimilarity(tt.a, tt.b), 1e-3)
		})
	}
	assert.InDelta(t, 0.9444, JaroSimilarity("MARTHA", "MARHTA"), 1e-3)
}

func TestEditDistances(t *testing.T) {
	assert.Equal(t, 3, LevenshteinDistance("KITTEN", "SITTING"))
	assert.Equal(t, 2, LevenshteinDistance("CA", "AC"))
	assert.Equal(t, 1, DamerauLevenshteinDistance("CA", "AC"))
	assert.Equal(t, 2, DamerauLevenshteinDistance("ÉCOLE", "ECOL"))
	assert.InDelta(t, 1-3.0/7.0, LevenshteinSimilarity("KITTEN", "SITTING"), 1e-9)
	assert.InDelta(t, 0.5, DamerauLevenshteinSimilarity("CA", "AC"), 1e-9)
}

func TestTokenSimilarities(t *testing.T) {
	assert.InDelta(t, 0.25, QGramSimilarity("NIGHT", "NACHT"), 1e-9)
	assert.InDelta(t, 0.25, CosineSimilarity("NIGHT", "NACHT"), 1e-9)
	assert.InDelta(t, 0.5, LCSSimilarity("ABCD", "ABXD"), 1e-9)
}

func TestAllMethods(t *testing.T) {
	pairs := [][2]string{
		{"SUNNY FARMS LLC", "SUNNY FARM LLC"},
		{"PHILLIPS ORCHARD", "FILIPS ORCHARD"},
		{"A", "B"},
		{"JOSÉ", "JOSE"},
	}
	for name := range methods {
		t.Run(string(name), func(t *testing.T) {
			fn, err := Lookup(string(name))
			require.NoError(t, err)

			assert.Equal(t, 0.0, fn("", ""), "empty strings are missing")
			assert.Equal(t, 0.0, fn("X", ""))
			assert.InDelta(t, 1.0, fn("A", "A"), 1e-9)
			assert.InDelta(t, 1.0, fn("GREEN VALLEY", "GREEN VALLEY"), 1e-9)

			for _, p := range pairs {
				ab, ba := fn(p[0], p[1]), fn(p[1], p[0])
				assert.InDelta(t, ab, ba, 1e-12, "%s not symmetric for %v", name, p)
				assert.GreaterOrEqual(t, ab, 0.0)
				assert.LessOrEqual(t, ab, 1.0)
			}
		})
	}
}

func TestLookupAliases(t *testing.T) {
	for _, name := range []string{"JaroWinkler", "jaro_winkler", " jaro-winkler ", "damerau"} {
		_, err := Lookup(name)
		assert.NoError(t, err, name)
	}
}
