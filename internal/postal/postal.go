package postal

import (
	"strings"

	postal "github.com/openvenues/gopostal/parser"

	"github.com/h2a-linkage/internal/normalize"
	"github.com/h2a-linkage/internal/table"
)

// Components are the address parts used for blocking and matching
type Components struct {
	HouseNumber string
	Road        string
	City        string
	State       string
	Postcode    string
}

// Parse splits a free-text address with libpostal
func Parse(address string) Components {
	if strings.TrimSpace(address) == "" {
		return Components{}
	}
	return extract(postal.ParseAddress(address))
}

// extract converts gopostal output to Components
func extract(parsed []postal.ParsedComponent) Components {
	var c Components
	for _, comp := range parsed {
		switch comp.Label {
		case "house_number":
			c.HouseNumber = comp.Value
		case "road":
			c.Road = strings.ToUpper(comp.Value)
		case "city", "city_district", "town", "village", "suburb":
			if c.City == "" {
				c.City = normalize.CleanCity(comp.Value)
			}
		case "state":
			c.State = strings.ToUpper(comp.Value)
		case "postcode":
			c.Postcode = comp.Value
		}
	}
	return c
}

// FillAddress parses addressColumn and fills the city, state and postcode
// columns where they are null or blank. Existing values are kept.
func FillAddress(t *table.Table, addressColumn, cityColumn, stateColumn, postcodeColumn string) *table.Table {
	out := t.Clone()
	for _, c := range []string{cityColumn, stateColumn, postcodeColumn} {
		if !out.Has(c) {
			out.Columns = append(out.Columns, c)
		}
	}
	for _, r := range out.Rows {
		addr, ok := table.String(r[addressColumn])
		if !ok {
			continue
		}
		parsed := Parse(addr)
		fill := func(column, value string) {
			if s, ok := table.String(r[column]); ok && strings.TrimSpace(s) != "" {
				return
			}
			if value != "" {
				r[column] = value
			}
		}
		fill(cityColumn, parsed.City)
		fill(stateColumn, parsed.State)
		fill(postcodeColumn, parsed.Postcode)
	}
	return out
}
