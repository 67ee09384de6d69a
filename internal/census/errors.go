package census

import "fmt"

// UnknownGeographyFormatError reports a geography key that is not a
// state+county+tract identifier
type UnknownGeographyFormatError struct {
	Key    string
	Reason string
}

func (e *UnknownGeographyFormatError) Error() string {
	return fmt.Sprintf("census: unknown geography format %q: %s", e.Key, e.Reason)
}

// DuplicateGroupKeyError reports two values landing in the same
// (geography key, column) cell, which means grouping went wrong upstream
type DuplicateGroupKeyError struct {
	GeoKey string
	Column string
}

func (e *DuplicateGroupKeyError) Error() string {
	if e.GeoKey == "" {
		return fmt.Sprintf("census: column %q present in both tables", e.Column)
	}
	return fmt.Sprintf("census: duplicate value for geography %s column %s", e.GeoKey, e.Column)
}
