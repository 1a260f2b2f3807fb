// Package store holds the in-memory, read-only rule collections for the
// three origins and normalizes raw rule records into comparable form.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ThresholdRef pairs a threshold with its owning rule so candidates keep
// their provenance through matching and into the report.
type ThresholdRef struct {
	Rule      *domain.Rule
	Threshold *domain.Threshold
}

// Context returns the descriptive text handed to the semantic verifier
// for this threshold.
func (r ThresholdRef) Context() string {
	if r.Threshold.HumanReadable != "" {
		return r.Threshold.HumanReadable
	}
	return r.Rule.Description
}

// RuleSet is the normalized collection of rules for one origin.
type RuleSet struct {
	Origin domain.Origin
	Rules  []*domain.Rule
}

// NewRuleSet normalizes raw rules for an origin. Structural violations
// (missing clause_id, a threshold without a parameter) are fatal since
// they indicate an upstream extraction contract breach. Value-level
// problems (unparseable numeric, unknown operator) mark the threshold
// invalid: it is excluded from matching, logged, and never silently
// coerced.
func NewRuleSet(origin domain.Origin, rules []*domain.Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule == nil {
			return nil, fmt.Errorf("%s rule %d: nil rule", origin, i)
		}
		if rule.ClauseID == "" {
			return nil, fmt.Errorf("%s rule %d: clause_id is required", origin, i)
		}
		if _, dup := seen[rule.ClauseID]; dup {
			return nil, fmt.Errorf("%s rule %q: duplicate clause_id", origin, rule.ClauseID)
		}
		seen[rule.ClauseID] = struct{}{}

		params := make(map[string]struct{}, len(rule.Thresholds))
		for j := range rule.Thresholds {
			t := &rule.Thresholds[j]
			if t.Parameter == "" {
				return nil, fmt.Errorf("%s rule %q threshold %d: parameter is required", origin, rule.ClauseID, j)
			}
			if _, dup := params[t.Parameter]; dup {
				return nil, fmt.Errorf("%s rule %q: duplicate parameter %q", origin, rule.ClauseID, t.Parameter)
			}
			params[t.Parameter] = struct{}{}

			normalizeThreshold(origin, rule.ClauseID, t)
		}
	}
	return &RuleSet{Origin: origin, Rules: rules}, nil
}

// normalizeThreshold canonicalizes the operator and ensures the numeric
// invariant: numeric operators need a parseable value_numeric, boolean
// operators need a recognizable boolean state.
func normalizeThreshold(origin domain.Origin, clauseID string, t *domain.Threshold) {
	op, err := domain.ParseOperator(string(t.Operator))
	if err != nil {
		t.Invalid = true
		t.InvalidReason = err.Error()
		slog.Warn("threshold skipped",
			"origin", origin,
			"clause_id", clauseID,
			"parameter", t.Parameter,
			"reason", t.InvalidReason,
		)
		return
	}

	// EQ over a boolean value ("flood_insurance_required EQUALS true")
	// is really a boolean requirement; reclassify so the evaluator
	// applies strictness semantics instead of numeric equality.
	if op == domain.OpEQ {
		if b, ok := boolValue(t); ok {
			if b {
				op = domain.OpBoolRequired
			} else {
				op = domain.OpBoolOptional
			}
		}
	}
	t.Operator = op

	if op.IsNumeric() {
		if t.ValueNumeric == nil {
			if v, ok := domain.ParseNumericValue(t.Value); ok {
				t.ValueNumeric = &v
			}
		}
		if t.ValueNumeric == nil {
			t.Invalid = true
			t.InvalidReason = fmt.Sprintf("operator %s requires a numeric value, got %q", op, t.Value)
			slog.Warn("threshold skipped",
				"origin", origin,
				"clause_id", clauseID,
				"parameter", t.Parameter,
				"reason", t.InvalidReason,
			)
		}
		return
	}

	// Boolean operators: value_numeric stays nil, value holds the state.
	t.ValueNumeric = nil
}

func boolValue(t *domain.Threshold) (bool, bool) {
	return t.BoolValue()
}

// Candidates returns every valid threshold in the set, in rule order.
func (s *RuleSet) Candidates() []ThresholdRef {
	var out []ThresholdRef
	for _, rule := range s.Rules {
		for j := range rule.Thresholds {
			t := &rule.Thresholds[j]
			if t.Invalid {
				continue
			}
			out = append(out, ThresholdRef{Rule: rule, Threshold: t})
		}
	}
	return out
}

// Thresholds returns every threshold in the set including invalid ones,
// in rule order. The engine reports a row for each regulatory threshold
// whether or not it can be compared.
func (s *RuleSet) Thresholds() []ThresholdRef {
	var out []ThresholdRef
	for _, rule := range s.Rules {
		for j := range rule.Thresholds {
			out = append(out, ThresholdRef{Rule: rule, Threshold: &rule.Thresholds[j]})
		}
	}
	return out
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return len(s.Rules)
}

// ParseRules decodes a JSON array of rule records as produced by the
// extraction collaborator.
func ParseRules(data []byte) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rule records: %w", err)
	}
	return rules, nil
}
