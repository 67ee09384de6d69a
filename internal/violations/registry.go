package violations

import (
	"fmt"
	"time"

	"github.com/h2a-linkage/internal/normalize"
	"github.com/h2a-linkage/internal/table"
)

// RegistryColumns names the raw investigation registry columns
type RegistryColumns struct {
	LegalName string
	City      string
	LoadDate  string
}

// DefaultRegistryColumns match the WHD investigations extract
var DefaultRegistryColumns = RegistryColumns{
	LegalName: "legal_name",
	City:      "cty_nm",
	LoadDate:  "ld_dt",
}

// PrepareRegistry adds the cleaned name and city columns to an investigations
// extract, drops rows whose name is blank, and keeps only records loaded
// after cutoff. A zero cutoff keeps every dated and undated record.
func PrepareRegistry(t *table.Table, cols RegistryColumns, cutoff time.Time) (*table.Table, error) {
	for _, c := range []string{cols.LegalName, cols.City, cols.LoadDate} {
		if !t.Has(c) {
			return nil, fmt.Errorf("registry: column %q not found", c)
		}
	}

	out := t.WithColumn("name", func(r table.Row) any {
		return normalize.CleanName(table.Format(r[cols.LegalName]))
	}).WithColumn("city", func(r table.Row) any {
		return normalize.CleanCity(table.Format(r[cols.City]))
	})

	return out.Filter(func(r table.Row) bool {
		if normalize.IsBlank(r["name"].(string)) {
			return false
		}
		if cutoff.IsZero() {
			return true
		}
		loaded, ok := table.Time(r[cols.LoadDate])
		return ok && loaded.After(cutoff)
	}), nil
}
