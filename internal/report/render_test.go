package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testReport() *domain.Report {
	return &domain.Report{
		ID:       "rpt-1",
		TenantID: "tenant-a",
		Findings: []domain.ComplianceFinding{
			{
				ClauseID:        "REG-001",
				ClauseDisplay:   "Lending Act (REG-001)",
				Parameter:       "max_transaction_amount",
				Policy:          domain.SideResult{Verdict: domain.VerdictPass},
				System:          domain.SideResult{Verdict: domain.VerdictFail},
				Classifications: []domain.Classification{domain.ClassSystemTooLenient},
				Severity:        domain.SeverityHigh,
				Explanation:     "Policy: [POL-001] ✓ 8000 ≤ 10000 | System: [SYS-001] ✗ 12000 ≤ 10000 does not hold",
			},
			{
				ClauseID:      "REG-002",
				ClauseDisplay: "Lending Act (REG-002)",
				Parameter:     "identity_verification",
				Policy:        domain.SideResult{Verdict: domain.VerdictNoMatch},
				System:        domain.SideResult{Verdict: domain.VerdictNoMatch},
				Classifications: []domain.Classification{
					domain.ClassMissingPolicy, domain.ClassMissingSystem,
				},
				Severity:    domain.SeverityHigh,
				Explanation: "Policy: ✗ no matching rule found | System: ✗ no matching rule found",
			},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(testReport())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0].RegulatoryClause != "Lending Act (REG-001) — max_transaction_amount" {
		t.Errorf("RegulatoryClause = %q", rows[0].RegulatoryClause)
	}
	if rows[0].PolicyCompliant != "Yes" || rows[0].SystemCompliant != "No" {
		t.Errorf("compliance columns = %q / %q", rows[0].PolicyCompliant, rows[0].SystemCompliant)
	}
	// A missing match renders as non-compliant, never blank.
	if rows[1].PolicyCompliant != "No" || rows[1].SystemCompliant != "No" {
		t.Errorf("missing-match columns = %q / %q", rows[1].PolicyCompliant, rows[1].SystemCompliant)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testReport()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}

	for i, col := range CSVHeader {
		if records[0][i] != col {
			t.Errorf("header column %d = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][0] != "Lending Act (REG-001) — max_transaction_amount" {
		t.Errorf("row clause = %q", records[1][0])
	}
	if records[1][4] != "SYSTEM_TOO_LENIENT" {
		t.Errorf("row classification = %q", records[1][4])
	}
	if records[2][4] != "MISSING_POLICY+MISSING_SYSTEM" {
		t.Errorf("joint classification = %q", records[2][4])
	}
	if records[2][5] != "HIGH" {
		t.Errorf("severity = %q", records[2][5])
	}
}

func TestWriteCSVDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := WriteCSV(&a, testReport()); err != nil {
		t.Fatal(err)
	}
	if err := WriteCSV(&b, testReport()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("identical reports must serialize to identical bytes")
	}
}

func TestWriteCSVEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, &domain.Report{}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("empty report should still emit the header, got %d records", len(records))
	}
}
