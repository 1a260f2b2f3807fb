package domain

import (
	"time"
)

// MatchTier records which tier of the matching strategy resolved a candidate.
type MatchTier string

const (
	// TierDirect means the lexical score alone was high enough to accept.
	TierDirect MatchTier = "DIRECT"

	// TierVerified means the semantic verifier confirmed a mid-band score.
	TierVerified MatchTier = "VERIFIED"

	// TierRejected means the semantic verifier denied a mid-band score.
	TierRejected MatchTier = "REJECTED"

	// TierNoMatch means no candidate cleared the lexical floor.
	TierNoMatch MatchTier = "NO_MATCH"
)

// Verdict is the outcome of comparing a matched threshold pair.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictNoMatch Verdict = "NO_MATCH"
)

// Classification labels the compliance state of one regulatory threshold.
type Classification string

const (
	ClassCompliant        Classification = "COMPLIANT"
	ClassSystemTooLenient Classification = "SYSTEM_TOO_LENIENT"
	ClassPolicyTooLenient Classification = "POLICY_TOO_LENIENT"
	ClassControlWeakened  Classification = "CONTROL_WEAKENED"
	ClassMissingPolicy    Classification = "MISSING_POLICY"
	ClassMissingSystem    Classification = "MISSING_SYSTEM"
)

// Severity ranks findings for triage.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// rank orders severities for max-aggregation.
func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Max returns the more severe of two severities.
func (s Severity) Max(other Severity) Severity {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// SideResult is the outcome of matching and evaluating one regulatory
// threshold against one target rule set (policy or system).
type SideResult struct {
	Verdict     Verdict   `json:"verdict"`
	Tier        MatchTier `json:"tier"`
	Score       float64   `json:"score"`
	ClauseID    string    `json:"clauseId,omitempty"`
	Parameter   string    `json:"parameter,omitempty"`
	Explanation string    `json:"explanation"`
}

// ComplianceFinding is one row of the final report, keyed by regulatory
// clause_id and parameter.
type ComplianceFinding struct {
	ClauseID       string `json:"clauseId"`
	ClauseDisplay  string `json:"clauseDisplay"`
	RegulationName string `json:"regulationName,omitempty"`
	Category       string `json:"category,omitempty"`
	Parameter      string `json:"parameter"`

	Policy SideResult `json:"policy"`
	System SideResult `json:"system"`

	// Classifications holds every label that applies; the joint
	// MISSING_POLICY + MISSING_SYSTEM case carries both.
	Classifications []Classification `json:"classifications"`
	Severity        Severity         `json:"severity"`
	Explanation     string           `json:"explanation"`
}

// HasClassification reports whether the finding carries the given label.
func (f *ComplianceFinding) HasClassification(c Classification) bool {
	for _, cl := range f.Classifications {
		if cl == c {
			return true
		}
	}
	return false
}

// ReportSummary aggregates finding counts for dashboards.
type ReportSummary struct {
	TotalFindings    int                    `json:"totalFindings"`
	PolicyCompliant  int                    `json:"policyCompliant"`
	SystemCompliant  int                    `json:"systemCompliant"`
	ByClassification map[Classification]int `json:"byClassification"`
	BySeverity       map[Severity]int       `json:"bySeverity"`
	ByCategory       map[string]int         `json:"byCategory"`
}

// RunMetadata captures processing information for one engine run.
type RunMetadata struct {
	RunID           string `json:"runId"`
	EngineVersion   string `json:"engineVersion"`
	FilterExpr      string `json:"filterExpr,omitempty"`
	ClausesChecked  int    `json:"clausesChecked"`
	ThresholdsDone  int    `json:"thresholdsChecked"`
	VerifierCalls   int64  `json:"verifierCalls"`
	VerifierErrors  int64  `json:"verifierErrors"`
	DurationMs      int64  `json:"durationMs"`
	PolicyRuleCount int    `json:"policyRuleCount"`
	SystemRuleCount int    `json:"systemRuleCount"`
}

// Report is the ordered sequence of findings for one check run.
// Row order mirrors regulatory input order.
type Report struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenantId"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Findings    []ComplianceFinding `json:"findings"`
	Summary     ReportSummary       `json:"summary"`
	Metadata    RunMetadata         `json:"metadata"`
}

// Summarize recomputes the report summary from its findings.
func (r *Report) Summarize() {
	s := ReportSummary{
		TotalFindings:    len(r.Findings),
		ByClassification: make(map[Classification]int),
		BySeverity:       make(map[Severity]int),
		ByCategory:       make(map[string]int),
	}
	for i := range r.Findings {
		f := &r.Findings[i]
		for _, c := range f.Classifications {
			s.ByClassification[c]++
		}
		s.BySeverity[f.Severity]++
		if f.Category != "" {
			s.ByCategory[f.Category]++
		}
		if f.Policy.Verdict == VerdictPass {
			s.PolicyCompliant++
		}
		if f.System.Verdict == VerdictPass {
			s.SystemCompliant++
		}
	}
	r.Summary = s
}
