// Package report renders compliance reports in their two output forms:
// record-per-row JSON for API consumers and a flat CSV table for audit
// export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CSVHeader is the fixed column order of the tabular form.
var CSVHeader = []string{
	"Regulatory Clause",
	"Compliant with Bank Policy",
	"Compliant with System Rules",
	"Explanation",
	"Classification",
	"Severity",
}

// Row is the structured record form of one finding.
type Row struct {
	RegulatoryClause string                  `json:"Regulatory Clause"`
	PolicyCompliant  string                  `json:"Compliant with Bank Policy"`
	SystemCompliant  string                  `json:"Compliant with System Rules"`
	Explanation      string                  `json:"Explanation"`
	Classification   []domain.Classification `json:"classification"`
	Severity         domain.Severity         `json:"severity"`
}

// Rows converts a report's findings to display rows in report order.
func Rows(r *domain.Report) []Row {
	rows := make([]Row, 0, len(r.Findings))
	for i := range r.Findings {
		f := &r.Findings[i]
		rows = append(rows, Row{
			RegulatoryClause: fmt.Sprintf("%s — %s", f.ClauseDisplay, f.Parameter),
			PolicyCompliant:  yesNo(f.Policy.Verdict),
			SystemCompliant:  yesNo(f.System.Verdict),
			Explanation:      f.Explanation,
			Classification:   f.Classifications,
			Severity:         f.Severity,
		})
	}
	return rows
}

// WriteCSV renders the flat tabular form. Output is deterministic:
// identical reports serialize to identical bytes.
func WriteCSV(w io.Writer, r *domain.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range Rows(r) {
		record := []string{
			row.RegulatoryClause,
			row.PolicyCompliant,
			row.SystemCompliant,
			row.Explanation,
			joinClassifications(row.Classification),
			string(row.Severity),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// yesNo maps verdicts to the audit columns. A missing match is
// non-compliance, not an unknown: absence of enforcement cannot pass.
func yesNo(v domain.Verdict) string {
	if v == domain.VerdictPass {
		return "Yes"
	}
	return "No"
}

func joinClassifications(classes []domain.Classification) string {
	parts := make([]string, len(classes))
	for i, c := range classes {
		parts[i] = string(c)
	}
	return strings.Join(parts, "+")
}
