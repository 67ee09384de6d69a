package match

import (
	"math"
	"strings"

	"github.com/h2a-linkage/internal/phonetics"
)

// Method names a string similarity function. Every method returns a score
// in [0,1] and is symmetric in its arguments.
type Method string

const (
	JaroWinkler        Method = "jarowinkler"
	Jaro               Method = "jaro"
	Levenshtein        Method = "levenshtein"
	DamerauLevenshtein Method = "damerau_levenshtein"
	QGram              Method = "qgram"
	Cosine             Method = "cosine"
	LCS                Method = "lcs"
	Metaphone          Method = "metaphone"
)

// SimilarityFunc scores two strings
type SimilarityFunc func(a, b string) float64

var sp = phonetics.NewSimplePhonetics()

var methods = map[Method]SimilarityFunc{
	JaroWinkler:        JaroWinklerSimilarity,
	Jaro:               JaroSimilarity,
	Levenshtein:        LevenshteinSimilarity,
	DamerauLevenshtein: DamerauLevenshteinSimilarity,
	QGram:              QGramSimilarity,
	Cosine:             CosineSimilarity,
	LCS:                LCSSimilarity,
	Metaphone:          sp.Similarity,
}

// Lookup resolves a method name, accepting the common spellings
func Lookup(name string) (SimilarityFunc, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	switch m {
	case "jaro_winkler", "jaro-winkler":
		m = JaroWinkler
	case "damerau-levenshtein", "damerau":
		m = DamerauLevenshtein
	}
	fn, ok := methods[m]
	if !ok {
		return nil, &UnknownMethodError{Name: name}
	}
	return fn, nil
}

// JaroSimilarity computes Jaro similarity over runes
func JaroSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		if s1 == "" {
			return 0.0
		}
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchWindow := max(len1, len2)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)

	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-matchWindow)
		end := min(i+matchWindow+1, len2)

		for j := start; j < end; j++ {
			if s2Matches[j] || r1[i] != r2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions/2))/m) / 3.0
}

// Winkler prefix boost parameters
const (
	winklerBoostThreshold = 0.7
	winklerPrefixScale    = 0.1
	winklerMaxPrefix      = 4
)

// JaroWinklerSimilarity boosts Jaro by the length of the common prefix
func JaroWinklerSimilarity(s1, s2 string) float64 {
	jaro := JaroSimilarity(s1, s2)
	if jaro <= winklerBoostThreshold {
		return jaro
	}
	r1, r2 := []rune(s1), []rune(s2)
	prefix := 0
	for prefix < min(len(r1), len(r2), winklerMaxPrefix) && r1[prefix] == r2[prefix] {
		prefix++
	}
	return jaro + float64(prefix)*winklerPrefixScale*(1-jaro)
}

// LevenshteinDistance computes edit distance over runes
func LevenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// DamerauLevenshteinDistance is the optimal string alignment distance:
// edit distance that also counts adjacent transpositions as one edit
func DamerauLevenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	d := make([][]int, len1+1)
	for i := range d {
		d[i] = make([]int, len2+1)
		d[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		d[0][j] = j
	}
	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && r1[i-1] == r2[j-2] && r1[i-2] == r2[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len1][len2]
}

// LevenshteinSimilarity is 1 - distance/longer length
func LevenshteinSimilarity(s1, s2 string) float64 {
	return editSimilarity(s1, s2, LevenshteinDistance)
}

// DamerauLevenshteinSimilarity is 1 - OSA distance/longer length
func DamerauLevenshteinSimilarity(s1, s2 string) float64 {
	return editSimilarity(s1, s2, DamerauLevenshteinDistance)
}

func editSimilarity(s1, s2 string, dist func(a, b string) int) float64 {
	longest := max(len([]rune(s1)), len([]rune(s2)))
	if longest == 0 {
		return 0.0
	}
	return 1.0 - float64(dist(s1, s2))/float64(longest)
}

// bigrams counts character 2-grams
func bigrams(s string) map[string]int {
	r := []rune(s)
	out := make(map[string]int)
	for i := 0; i+1 < len(r); i++ {
		out[string(r[i:i+2])]++
	}
	return out
}

// QGramSimilarity is the Dice coefficient over character bigram multisets
func QGramSimilarity(s1, s2 string) float64 {
	g1, g2 := bigrams(s1), bigrams(s2)
	n1, n2 := 0, 0
	for _, c := range g1 {
		n1 += c
	}
	for _, c := range g2 {
		n2 += c
	}
	if n1 == 0 || n2 == 0 {
		if s1 != "" && s1 == s2 {
			return 1.0
		}
		return 0.0
	}
	shared := 0
	for g, c := range g1 {
		shared += min(c, g2[g])
	}
	return 2 * float64(shared) / float64(n1+n2)
}

// CosineSimilarity compares character bigram count vectors
func CosineSimilarity(s1, s2 string) float64 {
	g1, g2 := bigrams(s1), bigrams(s2)
	var dot, norm1, norm2 float64
	for g, c := range g1 {
		dot += float64(c * g2[g])
		norm1 += float64(c * c)
	}
	for _, c := range g2 {
		norm2 += float64(c * c)
	}
	if norm1 == 0 || norm2 == 0 {
		if s1 != "" && s1 == s2 {
			return 1.0
		}
		return 0.0
	}
	return dot / (math.Sqrt(norm1) * math.Sqrt(norm2))
}

// LCSSimilarity is twice the longest common substring over the total length
func LCSSimilarity(s1, s2 string) float64 {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0.0
	}
	best := 0
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for i := 1; i <= len(r1); i++ {
		for j := 1; j <= len(r2); j++ {
			if r1[i-1] == r2[j-1] {
				curr[j] = prev[j-1] + 1
				best = max(best, curr[j])
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return 2 * float64(best) / float64(len(r1)+len(r2))
}
