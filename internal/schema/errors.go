package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when there are no yearly record sets
var ErrEmptyInput = errors.New("schema: no yearly record sets to reconcile")

// SchemaConflictError reports raw columns of one year resolving to the same
// canonical field
type SchemaConflictError struct {
	Year    int
	Field   string
	Columns []string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema: year %d: columns [%s] all resolve to %q",
		e.Year, strings.Join(e.Columns, ", "), e.Field)
}
