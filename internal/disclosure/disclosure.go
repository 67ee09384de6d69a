package disclosure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/h2a-linkage/internal/normalize"
	"github.com/h2a-linkage/internal/table"
)

// Disclosure file column names
const (
	CaseStatus    = "CASE_STATUS"
	EmployerName  = "EMPLOYER_NAME"
	EmployerCity  = "EMPLOYER_CITY"
	EmployerState = "EMPLOYER_STATE"
	StatusColumn  = "status"
)

// Certified statuses
const (
	Certification        = "CERTIFICATION"
	PartialCertification = "PARTIAL CERTIFICATION"
)

// reStatus takes everything after the first "- " in a case status
var reStatus = regexp.MustCompile(`-\s(.*)$`)

// Status extracts the determination from a case status such as
// "Determination Issued - Certification". The result is upper-cased so older
// files that use title case compare equal.
func Status(caseStatus string) (string, error) {
	m := reStatus.FindStringSubmatch(caseStatus)
	if m == nil {
		return "", fmt.Errorf("case status %q has no determination", caseStatus)
	}
	return strings.ToUpper(strings.TrimSpace(m[1])), nil
}

// WithStatus adds the status column parsed from CASE_STATUS. Statuses that
// cannot be parsed become null.
func WithStatus(t *table.Table) (*table.Table, error) {
	if !t.Has(CaseStatus) {
		return nil, fmt.Errorf("column %q not found", CaseStatus)
	}
	return t.WithColumn(StatusColumn, func(r table.Row) any {
		s, ok := table.String(r[CaseStatus])
		if !ok {
			return nil
		}
		status, err := Status(s)
		if err != nil {
			return nil
		}
		return status
	}), nil
}

// CertifiedOnly keeps certified and partially certified applications
func CertifiedOnly(t *table.Table) (*table.Table, error) {
	withStatus, err := WithStatus(t)
	if err != nil {
		return nil, err
	}
	return withStatus.Filter(func(r table.Row) bool {
		s, _ := r[StatusColumn].(string)
		return s == Certification || s == PartialCertification
	}), nil
}

// CleanEmployers adds the cleaned name and city columns used for matching
func CleanEmployers(t *table.Table) (*table.Table, error) {
	for _, c := range []string{EmployerName, EmployerCity} {
		if !t.Has(c) {
			return nil, fmt.Errorf("column %q not found", c)
		}
	}
	return t.WithColumn("name", func(r table.Row) any {
		return normalize.CleanName(table.Format(r[EmployerName]))
	}).WithColumn("city", func(r table.Row) any {
		return normalize.CleanCity(table.Format(r[EmployerCity]))
	}), nil
}
