package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/h2a-linkage/internal/debug"
)

// reLegalSuffix finds a legal-form suffix followed by a period
var reLegalSuffix = regexp.MustCompile(`\b(LLC|CO|INC)\.`)

// toUpper folds case the same way for every script. A Caser keeps state, so
// each call gets its own.
func toUpper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// CleanName upper-cases an employer name and drops the period after LLC, CO
// and INC. Both sides of a match must go through the same function.
func CleanName(raw string) string {
	s := toUpper(raw)
	return reLegalSuffix.ReplaceAllString(s, "$1")
}

// CleanCity upper-cases and trims a city name
func CleanCity(raw string) string {
	return toUpper(strings.TrimSpace(raw))
}

// CanonicalName is the stricter form used when CleanName is not enough
func CanonicalName(raw string) string {
	return CanonicalNameDebug(false, raw)
}

// CanonicalNameDebug applies CleanName, strips diacritics, replaces
// punctuation with spaces and collapses whitespace
func CanonicalNameDebug(localDebug bool, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := CleanName(strings.TrimSpace(raw))
	debug.DebugOutput(localDebug, "Cleaned: %s", s)

	s = StripDiacritics(s)
	debug.DebugOutput(localDebug, "After diacritic removal: %s", s)

	// Keep '&' and '-' inside names, everything else becomes a space
	b := strings.Builder{}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '&' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")
	debug.DebugOutput(localDebug, "Final canonical: %s", s)
	return s
}

// StripDiacritics removes combining marks, so JOSÉ becomes JOSE
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// IsBlank reports whether a name is empty after canonicalisation, or is the
// NAN text a stringified missing value turns into
func IsBlank(raw string) bool {
	c := CanonicalName(raw)
	return c == "" || c == "NAN"
}
