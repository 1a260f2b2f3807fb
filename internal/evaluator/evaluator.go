// Package evaluator applies operator-aware threshold comparison. Given a
// matched regulatory/target pair it decides pass or fail and renders an
// explanation from which the verdict can be re-derived without
// re-running the engine.
package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Result is a verdict with its deterministic justification.
type Result struct {
	Verdict     domain.Verdict
	Explanation string
}

// Evaluate compares a target threshold against the regulatory one,
// dispatching on the regulatory operator. The target is compliant when
// it is at least as strict as the regulation demands. Incomparable
// pairs fail explicitly, never pass silently.
func Evaluate(reg, target *domain.Threshold) Result {
	op := reg.Operator
	switch op {
	case domain.OpLTE, domain.OpLT, domain.OpGTE, domain.OpGT:
		return evaluateNumeric(reg, target)
	case domain.OpEQ:
		return evaluateEqual(reg, target)
	case domain.OpBoolRequired, domain.OpBoolOptional:
		return evaluateBool(reg, target)
	}
	return fail("incomparable: unrecognized operator %q", string(op))
}

func evaluateNumeric(reg, target *domain.Threshold) Result {
	regVal, targetVal, ok := numericPair(reg, target)
	if !ok {
		return fail("incomparable: %s=%q vs %s=%q are not both numeric",
			reg.Parameter, reg.Value, target.Parameter, target.Value)
	}

	var compliant bool
	switch reg.Operator {
	case domain.OpLTE:
		// Maximum limit: target must be equal or lower.
		compliant = targetVal <= regVal
	case domain.OpLT:
		compliant = targetVal < regVal
	case domain.OpGTE:
		// Minimum requirement: target must be equal or higher.
		compliant = targetVal >= regVal
	case domain.OpGT:
		compliant = targetVal > regVal
	}

	comparison := fmt.Sprintf("%s %s %s", formatNum(targetVal), reg.Operator.Symbol(), formatNum(regVal))
	if compliant {
		return pass("%s", comparison)
	}
	return fail("%s does not hold (target allows %s, regulation demands %s %s)",
		comparison, formatNum(targetVal), reg.Operator.Symbol(), formatNum(regVal))
}

func evaluateEqual(reg, target *domain.Threshold) Result {
	if regVal, targetVal, ok := numericPair(reg, target); ok {
		if targetVal == regVal {
			return pass("%s = %s", formatNum(targetVal), formatNum(regVal))
		}
		return fail("%s ≠ %s", formatNum(targetVal), formatNum(regVal))
	}

	// Non-numeric equality falls back to boolean flags.
	regBool, regOK := reg.BoolValue()
	targetBool, targetOK := target.BoolValue()
	if regOK && targetOK {
		if regBool == targetBool {
			return pass("both %s", boolWord(regBool))
		}
		return fail("regulation %s, target %s", boolWord(regBool), boolWord(targetBool))
	}

	return fail("incomparable: %s=%q vs %s=%q under EQ",
		reg.Parameter, reg.Value, target.Parameter, target.Value)
}

// evaluateBool applies strictness ordering: REQUIRED is stricter than
// OPTIONAL. A target satisfies the regulation only when it is at least
// as strict; an OPTIONAL target under a REQUIRED regulation is the
// weakened-control case.
func evaluateBool(reg, target *domain.Threshold) Result {
	regRequired := reg.Operator == domain.OpBoolRequired

	targetRequired, ok := targetBoolState(target)
	if !ok {
		return fail("incomparable: target %s=%q has no boolean state",
			target.Parameter, target.Value)
	}

	if !regRequired {
		// Regulation only allows the control to be optional; any
		// target state satisfies it.
		return pass("regulation OPTIONAL, target %s", boolWord(targetRequired))
	}
	if targetRequired {
		return pass("REQUIRED = REQUIRED")
	}
	return fail("regulation REQUIRED, target OPTIONAL")
}

// targetBoolState reads the boolean control state from the target side,
// from its operator when boolean, otherwise from its textual value.
func targetBoolState(t *domain.Threshold) (required bool, ok bool) {
	switch t.Operator {
	case domain.OpBoolRequired:
		return true, true
	case domain.OpBoolOptional:
		return false, true
	}
	return t.BoolValue()
}

// numericPair extracts both numeric values if present.
func numericPair(reg, target *domain.Threshold) (regVal, targetVal float64, ok bool) {
	if reg.ValueNumeric == nil || target.ValueNumeric == nil {
		return 0, 0, false
	}
	return *reg.ValueNumeric, *target.ValueNumeric, true
}

// formatNum renders a float without trailing zeros, matching the
// literal values in the source records ("80" not "80.000000").
func formatNum(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

func boolWord(b bool) string {
	if b {
		return "REQUIRED"
	}
	return "OPTIONAL"
}

func pass(format string, args ...any) Result {
	return Result{Verdict: domain.VerdictPass, Explanation: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Verdict: domain.VerdictFail, Explanation: fmt.Sprintf(format, args...)}
}

// Describe renders a threshold for log and report text.
func Describe(t *domain.Threshold) string {
	var b strings.Builder
	b.WriteString(t.Parameter)
	b.WriteString(" ")
	b.WriteString(t.Operator.Symbol())
	if t.Operator.IsNumeric() && t.ValueNumeric != nil {
		b.WriteString(" ")
		b.WriteString(formatNum(*t.ValueNumeric))
		if t.Unit != "" {
			b.WriteString(t.Unit)
		}
	}
	return b.String()
}
