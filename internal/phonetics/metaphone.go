package phonetics

import (
	"strings"
)

// codeLength caps each word's code
const codeLength = 4

// digraphs are rewritten in this order before vowels are dropped
var digraphs = []struct{ from, to string }{
	{"PH", "F"},
	{"GH", "F"},
	{"CK", "K"},
	{"QU", "KW"},
	{"TH", "0"}, // theta
	{"SH", "X"},
	{"CH", "X"},
	{"WH", "W"},
	{"KN", "N"},
	{"WR", "R"},
}

// SimplePhonetics computes simplified metaphone codes for names
type SimplePhonetics struct{}

// NewSimplePhonetics creates a simple phonetics encoder
func NewSimplePhonetics() *SimplePhonetics {
	return &SimplePhonetics{}
}

// EncodeWord returns the code of one word
func (sp *SimplePhonetics) EncodeWord(word string) string {
	result := strings.ToUpper(strings.TrimSpace(word))
	if result == "" {
		return ""
	}

	for _, d := range digraphs {
		result = strings.ReplaceAll(result, d.from, d.to)
	}

	// Drop vowels except a leading one
	if len(result) > 1 {
		rest := strings.Map(func(r rune) rune {
			switch r {
			case 'A', 'E', 'I', 'O', 'U', 'Y':
				return -1
			}
			return r
		}, result[1:])
		result = result[:1] + rest
	}

	var cleaned strings.Builder
	var last rune
	for _, r := range result {
		if r != last {
			cleaned.WriteRune(r)
			last = r
		}
	}

	code := cleaned.String()
	if len(code) > codeLength {
		code = code[:codeLength]
	}
	return code
}

// Encode returns the space separated codes of every word in text
func (sp *SimplePhonetics) Encode(text string) []string {
	words := strings.Fields(text)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		if c := sp.EncodeWord(w); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// Match reports whether two texts encode identically
func (sp *SimplePhonetics) Match(text1, text2 string) bool {
	c1, c2 := sp.Encode(text1), sp.Encode(text2)
	return len(c1) > 0 && strings.Join(c1, " ") == strings.Join(c2, " ")
}

// Similarity is the Dice coefficient of the two texts' word codes, in [0,1]
func (sp *SimplePhonetics) Similarity(text1, text2 string) float64 {
	c1, c2 := sp.Encode(text1), sp.Encode(text2)
	if len(c1) == 0 || len(c2) == 0 {
		return 0
	}
	counts := make(map[string]int, len(c1))
	for _, c := range c1 {
		counts[c]++
	}
	shared := 0
	for _, c := range c2 {
		if counts[c] > 0 {
			counts[c]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(c1)+len(c2))
}
