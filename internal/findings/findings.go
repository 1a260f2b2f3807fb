// Package findings classifies the per-side verdicts for one regulatory
// threshold into a single finding with severity, and renders the
// traceable explanation string.
package findings

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input carries everything needed to classify one regulatory threshold.
type Input struct {
	Rule      *domain.Rule
	Threshold *domain.Threshold
	Policy    domain.SideResult
	System    domain.SideResult
}

// Generate builds the finding for one regulatory threshold from its
// policy-side and system-side results.
//
// Classification table:
//
//	policy      system      classification
//	no match    no match    MISSING_POLICY + MISSING_SYSTEM (jointly)
//	PASS        no match    MISSING_SYSTEM
//	no match    PASS        MISSING_POLICY
//	PASS        PASS        COMPLIANT
//	PASS        FAIL        SYSTEM_TOO_LENIENT (CONTROL_WEAKENED for boolean regs)
//	FAIL        any         POLICY_TOO_LENIENT (CONTROL_WEAKENED for boolean regs), plus the system-side label
//
// Severity follows the side, not the label: the system set is what
// production actually enforces, so any system-side defect (FAIL or
// missing) is HIGH; a policy-side defect alone is MEDIUM. A finding
// with defects on both sides takes the maximum.
func Generate(in Input) domain.ComplianceFinding {
	f := domain.ComplianceFinding{
		ClauseID:       in.Rule.ClauseID,
		ClauseDisplay:  in.Rule.DisplayName(),
		RegulationName: in.Rule.RegulationName,
		Category:       in.Rule.Category,
		Parameter:      in.Threshold.Parameter,
		Policy:         in.Policy,
		System:         in.System,
	}

	boolClass := in.Threshold.Operator.IsBoolean()

	var classes []domain.Classification
	severity := domain.SeverityLow
	switch in.Policy.Verdict {
	case domain.VerdictNoMatch:
		classes = append(classes, domain.ClassMissingPolicy)
		severity = severity.Max(domain.SeverityMedium)
	case domain.VerdictFail:
		classes = append(classes, lenientClass(boolClass, domain.ClassPolicyTooLenient))
		severity = severity.Max(domain.SeverityMedium)
	}
	switch in.System.Verdict {
	case domain.VerdictNoMatch:
		classes = append(classes, domain.ClassMissingSystem)
		severity = severity.Max(domain.SeverityHigh)
	case domain.VerdictFail:
		classes = append(classes, lenientClass(boolClass, domain.ClassSystemTooLenient))
		severity = severity.Max(domain.SeverityHigh)
	}
	if len(classes) == 0 {
		classes = append(classes, domain.ClassCompliant)
	}
	f.Classifications = dedupe(classes)
	f.Severity = severity

	f.Explanation = explanation(in)
	return f
}

// lenientClass picks CONTROL_WEAKENED when a boolean control was
// downgraded, otherwise the numeric leniency label for the side.
func lenientClass(boolClass bool, numeric domain.Classification) domain.Classification {
	if boolClass {
		return domain.ClassControlWeakened
	}
	return numeric
}

// explanation concatenates the per-side sub-explanations with their
// source clause ids so the report is traceable to origin records.
func explanation(in Input) string {
	return fmt.Sprintf("Policy: %s | System: %s",
		sideExplanation(in.Policy), sideExplanation(in.System))
}

func sideExplanation(side domain.SideResult) string {
	var b strings.Builder
	if side.Verdict == domain.VerdictNoMatch {
		b.WriteString("✗ no matching rule found")
		if side.Explanation != "" {
			b.WriteString(" (")
			b.WriteString(side.Explanation)
			b.WriteString(")")
		}
		return b.String()
	}

	if side.ClauseID != "" {
		b.WriteString("[")
		b.WriteString(side.ClauseID)
		b.WriteString("] ")
	}
	if side.Verdict == domain.VerdictPass {
		b.WriteString("✓ ")
	} else {
		b.WriteString("✗ ")
	}
	b.WriteString(side.Explanation)
	return b.String()
}

func dedupe(classes []domain.Classification) []domain.Classification {
	seen := make(map[domain.Classification]struct{}, len(classes))
	out := classes[:0]
	for _, c := range classes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
