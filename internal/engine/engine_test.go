package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/store"
	"github.com/opensource-finance/kestrel/internal/verifier"
)

func ruleSet(t *testing.T, origin domain.Origin, rules ...*domain.Rule) *store.RuleSet {
	t.Helper()
	rs, err := store.NewRuleSet(origin, rules)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func numericRule(clauseID, param string, op domain.Operator, value string) *domain.Rule {
	return &domain.Rule{
		ClauseID:       clauseID,
		RegulationName: "Lending Act",
		Category:       "transaction_limits",
		Thresholds: []domain.Threshold{
			{Parameter: param, Operator: op, Value: value},
		},
	}
}

func boolRule(clauseID, param string, op domain.Operator) *domain.Rule {
	return &domain.Rule{
		ClauseID:       clauseID,
		RegulationName: "Lending Act",
		Category:       "kyc",
		Thresholds: []domain.Threshold{
			{Parameter: param, Operator: op},
		},
	}
}

func findingFor(t *testing.T, report *domain.Report, clauseID string) *domain.ComplianceFinding {
	t.Helper()
	for i := range report.Findings {
		if report.Findings[i].ClauseID == clauseID {
			return &report.Findings[i]
		}
	}
	t.Fatalf("no finding for %s", clauseID)
	return nil
}

func TestRunCompliantPipeline(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, numericRule("REG-001", "max_transaction_amount", domain.OpLTE, "10000")),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "max_transaction_amount", domain.OpLTE, "8000")),
		System:     ruleSet(t, domain.OriginSystem, numericRule("SYS-001", "max_transaction_amount", domain.OpLTE, "9000")),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(report.Findings))
	}
	f := &report.Findings[0]
	if !f.HasClassification(domain.ClassCompliant) {
		t.Errorf("expected COMPLIANT, got %v", f.Classifications)
	}
	if f.Policy.Verdict != domain.VerdictPass || f.System.Verdict != domain.VerdictPass {
		t.Errorf("verdicts: policy=%s system=%s", f.Policy.Verdict, f.System.Verdict)
	}
	if f.Policy.Tier != domain.TierDirect {
		t.Errorf("expected DIRECT tier, got %s", f.Policy.Tier)
	}
	if report.Summary.PolicyCompliant != 1 || report.Summary.SystemCompliant != 1 {
		t.Errorf("summary: %+v", report.Summary)
	}
}

func TestRunDetectsLeniency(t *testing.T) {
	// System enforces a higher cap than the regulation allows.
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, numericRule("REG-001", "max_transaction_amount", domain.OpLTE, "10000")),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "max_transaction_amount", domain.OpLTE, "8000")),
		System:     ruleSet(t, domain.OriginSystem, numericRule("SYS-001", "max_transaction_amount", domain.OpLTE, "15000")),
	})
	if err != nil {
		t.Fatal(err)
	}

	f := findingFor(t, report, "REG-001")
	if !f.HasClassification(domain.ClassSystemTooLenient) {
		t.Errorf("expected SYSTEM_TOO_LENIENT, got %v", f.Classifications)
	}
	if f.Severity != domain.SeverityHigh {
		t.Errorf("expected HIGH, got %s", f.Severity)
	}
}

func TestRunDetectsMissingControls(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, boolRule("REG-002", "identity_verification", domain.OpBoolRequired)),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "apr_disclosure_days", domain.OpGTE, "3")),
		System:     ruleSet(t, domain.OriginSystem, numericRule("SYS-001", "apr_disclosure_days", domain.OpGTE, "3")),
	})
	if err != nil {
		t.Fatal(err)
	}

	f := findingFor(t, report, "REG-002")
	if !f.HasClassification(domain.ClassMissingPolicy) || !f.HasClassification(domain.ClassMissingSystem) {
		t.Errorf("expected joint missing classifications, got %v", f.Classifications)
	}
	if f.Severity != domain.SeverityHigh {
		t.Errorf("expected HIGH, got %s", f.Severity)
	}
	if f.Policy.Tier != domain.TierNoMatch {
		t.Errorf("expected NO_MATCH tier, got %s", f.Policy.Tier)
	}
}

func TestRunVerifierBridgesNaming(t *testing.T) {
	// Mid-band lexical score; the verifier decides whether the renamed
	// parameter is the same control.
	reg := ruleSet(t, domain.OriginRegulatory, numericRule("REG-001", "holdback", domain.OpLTE, "100"))
	policy := ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "lookback", domain.OpLTE, "80"))

	t.Run("Confirmed", func(t *testing.T) {
		v := &verifier.Stub{Pairs: map[string]bool{"holdback|lookback": true}}
		eng := New(domain.MatcherConfig{}, v, 4)

		report, err := eng.Run(context.Background(), RunInput{
			TenantID:   "tenant-a",
			Regulatory: reg,
			Policy:     policy,
		})
		if err != nil {
			t.Fatal(err)
		}
		f := findingFor(t, report, "REG-001")
		if f.Policy.Tier != domain.TierVerified {
			t.Errorf("expected VERIFIED, got %s", f.Policy.Tier)
		}
		if f.Policy.Verdict != domain.VerdictPass {
			t.Errorf("expected PASS, got %s", f.Policy.Verdict)
		}
		if report.Metadata.VerifierCalls == 0 {
			t.Error("expected verifier calls in metadata")
		}
	})

	t.Run("Denied", func(t *testing.T) {
		eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

		report, err := eng.Run(context.Background(), RunInput{
			TenantID:   "tenant-a",
			Regulatory: reg,
			Policy:     policy,
		})
		if err != nil {
			t.Fatal(err)
		}
		f := findingFor(t, report, "REG-001")
		if f.Policy.Tier != domain.TierRejected {
			t.Errorf("expected REJECTED, got %s", f.Policy.Tier)
		}
		if f.Policy.Verdict != domain.VerdictNoMatch {
			t.Errorf("rejected match must read as no match, got %s", f.Policy.Verdict)
		}
	})
}

func TestRunRequiresRegulatory(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)
	if _, err := eng.Run(context.Background(), RunInput{TenantID: "tenant-a"}); err == nil {
		t.Fatal("expected an error without a regulatory rule set")
	}
}

func TestRunInvalidRegulatoryThreshold(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, numericRule("REG-001", "review_cadence", domain.OpLTE, "as appropriate")),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "review_cadence", domain.OpLTE, "30")),
	})
	if err != nil {
		t.Fatal(err)
	}

	// The row is reported, not dropped, with the failure reason visible.
	if len(report.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(report.Findings))
	}
	f := &report.Findings[0]
	if f.Policy.Verdict != domain.VerdictNoMatch || f.System.Verdict != domain.VerdictNoMatch {
		t.Errorf("verdicts: policy=%s system=%s", f.Policy.Verdict, f.System.Verdict)
	}
	if !strings.HasPrefix(f.Policy.Explanation, "regulatory threshold invalid") {
		t.Errorf("explanation = %q", f.Policy.Explanation)
	}
}

func TestRunFilter(t *testing.T) {
	filter, err := store.CompileFilter(`category == "kyc"`)
	if err != nil {
		t.Fatal(err)
	}

	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)
	report, err := eng.Run(context.Background(), RunInput{
		TenantID: "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory,
			numericRule("REG-001", "max_transaction_amount", domain.OpLTE, "10000"),
			boolRule("REG-002", "identity_verification", domain.OpBoolRequired),
		),
		Policy: ruleSet(t, domain.OriginPolicy, boolRule("POL-001", "identity_verification", domain.OpBoolRequired)),
		Filter: filter,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Findings) != 1 || report.Findings[0].ClauseID != "REG-002" {
		t.Fatalf("expected only the kyc clause, got %+v", report.Findings)
	}
	if report.Metadata.FilterExpr != `category == "kyc"` {
		t.Errorf("FilterExpr = %q", report.Metadata.FilterExpr)
	}
	if report.Metadata.ClausesChecked != 1 {
		t.Errorf("ClausesChecked = %d", report.Metadata.ClausesChecked)
	}
}

func TestRunCutoffOverride(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, numericRule("REG-001", "ltv_ratio", domain.OpLTE, "80")),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "ltv_ratio", domain.OpLTE, "75")),
		Cutoffs:    &domain.MatcherConfig{DirectThreshold: 1.1, VerifyFloor: 0.99},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := findingFor(t, report, "REG-001")
	if f.Policy.Tier != domain.TierRejected {
		t.Errorf("expected override to force the verify band, got %s", f.Policy.Tier)
	}
}

func TestRunDeterministicOrder(t *testing.T) {
	rules := []*domain.Rule{
		numericRule("REG-003", "apr_disclosure_days", domain.OpGTE, "3"),
		numericRule("REG-001", "max_transaction_amount", domain.OpLTE, "10000"),
		numericRule("REG-002", "ltv_ratio", domain.OpLTE, "80"),
	}
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	in := RunInput{
		TenantID:   "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory, rules...),
		Policy:     ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "ltv_ratio", domain.OpLTE, "75")),
	}

	first, err := eng.Run(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.Run(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	// Row order mirrors regulatory input order, not completion order.
	wantOrder := []string{"REG-003", "REG-001", "REG-002"}
	for i, id := range wantOrder {
		if first.Findings[i].ClauseID != id {
			t.Errorf("row %d = %s, want %s", i, first.Findings[i].ClauseID, id)
		}
	}

	// Identical inputs yield identical findings across runs.
	a, _ := json.Marshal(first.Findings)
	b, _ := json.Marshal(second.Findings)
	if string(a) != string(b) {
		t.Error("findings differ between identical runs")
	}
}

func TestRunMetadata(t *testing.T) {
	eng := New(domain.MatcherConfig{}, &verifier.Stub{}, 4)

	report, err := eng.Run(context.Background(), RunInput{
		TenantID: "tenant-a",
		Regulatory: ruleSet(t, domain.OriginRegulatory,
			numericRule("REG-001", "max_transaction_amount", domain.OpLTE, "10000"),
			numericRule("REG-002", "ltv_ratio", domain.OpLTE, "80"),
		),
		Policy: ruleSet(t, domain.OriginPolicy, numericRule("POL-001", "ltv_ratio", domain.OpLTE, "75")),
		System: ruleSet(t, domain.OriginSystem, numericRule("SYS-001", "ltv_ratio", domain.OpLTE, "75")),
	})
	if err != nil {
		t.Fatal(err)
	}

	md := report.Metadata
	if md.RunID != report.ID {
		t.Errorf("RunID %q != report ID %q", md.RunID, report.ID)
	}
	if md.EngineVersion != EngineVersion {
		t.Errorf("EngineVersion = %q", md.EngineVersion)
	}
	if md.ClausesChecked != 2 || md.ThresholdsDone != 2 {
		t.Errorf("counts: clauses=%d thresholds=%d", md.ClausesChecked, md.ThresholdsDone)
	}
	if md.PolicyRuleCount != 1 || md.SystemRuleCount != 1 {
		t.Errorf("rule counts: policy=%d system=%d", md.PolicyRuleCount, md.SystemRuleCount)
	}
}
