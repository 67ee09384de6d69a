package census

import (
	"strings"
)

// Field widths of a tract GEOID
const (
	stateWidth  = 2
	countyWidth = 3
	tractWidth  = 6
	geoIDWidth  = stateWidth + countyWidth + tractWidth
)

// tractSummaryPrefix precedes the GEOID in the API's GEO_ID column
const tractSummaryPrefix = "1400000US"

// GeoID is a Census tract identifier
type GeoID struct {
	State  string
	County string
	Tract  string
}

// String returns the 11-digit GEOID
func (g GeoID) String() string {
	return g.State + g.County + g.Tract
}

// ParseGeoID accepts an 11-digit GEOID or the API form 1400000US<GEOID>
func ParseGeoID(key string) (GeoID, error) {
	s := strings.TrimSpace(key)
	if i := strings.Index(s, "US"); i >= 0 {
		if s[:i+2] != tractSummaryPrefix {
			return GeoID{}, &UnknownGeographyFormatError{Key: key, Reason: "summary level is not tract"}
		}
		s = s[i+2:]
	}
	if len(s) != geoIDWidth {
		return GeoID{}, &UnknownGeographyFormatError{Key: key, Reason: "want 11 digits state+county+tract"}
	}
	if !allDigits(s) {
		return GeoID{}, &UnknownGeographyFormatError{Key: key, Reason: "non-digit characters"}
	}
	return GeoID{
		State:  s[:stateWidth],
		County: s[stateWidth : stateWidth+countyWidth],
		Tract:  s[stateWidth+countyWidth:],
	}, nil
}

// GeoIDFromParts builds a GEOID from the separate state, county and tract
// columns of an API pull, zero padding each part
func GeoIDFromParts(state, county, tract string) (GeoID, error) {
	parts := []struct {
		v     string
		width int
	}{{state, stateWidth}, {county, countyWidth}, {tract, tractWidth}}

	padded := make([]string, len(parts))
	for i, p := range parts {
		v := strings.TrimSpace(p.v)
		if v == "" || len(v) > p.width || !allDigits(v) {
			return GeoID{}, &UnknownGeographyFormatError{
				Key:    state + "|" + county + "|" + tract,
				Reason: "state, county and tract must be numeric codes",
			}
		}
		padded[i] = strings.Repeat("0", p.width-len(v)) + v
	}
	return GeoID{State: padded[0], County: padded[1], Tract: padded[2]}, nil
}

// NormalizeKey returns the canonical 11-digit form of a geography key
func NormalizeKey(key string) (string, error) {
	g, err := ParseGeoID(key)
	if err != nil {
		return "", err
	}
	return g.String(), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
