// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Origin identifies which document family a rule set came from.
type Origin string

const (
	OriginRegulatory Origin = "regulatory"
	OriginPolicy     Origin = "policy"
	OriginSystem     Origin = "system"
)

// ParseOrigin validates an origin string from an API path or config value.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(strings.ToLower(s)) {
	case OriginRegulatory:
		return OriginRegulatory, nil
	case OriginPolicy:
		return OriginPolicy, nil
	case OriginSystem:
		return OriginSystem, nil
	default:
		return "", fmt.Errorf("unknown origin %q: expected regulatory, policy, or system", s)
	}
}

// Operator defines the comparison direction and strictness polarity of a threshold.
type Operator string

const (
	OpLTE          Operator = "LTE"
	OpGTE          Operator = "GTE"
	OpLT           Operator = "LT"
	OpGT           Operator = "GT"
	OpEQ           Operator = "EQ"
	OpBoolRequired Operator = "BOOL_REQUIRED"
	OpBoolOptional Operator = "BOOL_OPTIONAL"
)

// operatorAliases maps the operator spellings produced by upstream extraction
// to the canonical Operator values.
var operatorAliases = map[string]Operator{
	"LTE": OpLTE, "<=": OpLTE,
	"GTE": OpGTE, ">=": OpGTE,
	"LT": OpLT, "<": OpLT,
	"GT": OpGT, ">": OpGT,
	"EQ": OpEQ, "EQUALS": OpEQ, "=": OpEQ, "==": OpEQ,
	"BOOL_REQUIRED": OpBoolRequired, "REQUIRED": OpBoolRequired,
	"BOOL_OPTIONAL": OpBoolOptional, "OPTIONAL": OpBoolOptional,
}

// ParseOperator normalizes an operator string to its canonical form.
// Returns an error for unrecognized operators so callers can skip the
// threshold with a warning instead of guessing.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("ambiguous operator %q", s)
	}
	return op, nil
}

// IsNumeric reports whether the operator compares numeric values.
func (o Operator) IsNumeric() bool {
	switch o {
	case OpLTE, OpGTE, OpLT, OpGT, OpEQ:
		return true
	}
	return false
}

// IsBoolean reports whether the operator compares boolean control states.
func (o Operator) IsBoolean() bool {
	return o == OpBoolRequired || o == OpBoolOptional
}

// Symbol returns the display symbol used in explanation strings.
func (o Operator) Symbol() string {
	switch o {
	case OpLTE:
		return "≤"
	case OpGTE:
		return "≥"
	case OpLT:
		return "<"
	case OpGT:
		return ">"
	case OpEQ:
		return "="
	case OpBoolRequired:
		return "REQUIRED"
	case OpBoolOptional:
		return "OPTIONAL"
	}
	return string(o)
}

// Threshold is the atomic comparable unit of a rule.
// Field names match the extraction collaborator's output exactly.
type Threshold struct {
	Parameter     string   `json:"parameter"`
	Value         string   `json:"value"`
	ValueNumeric  *float64 `json:"value_numeric"`
	Operator      Operator `json:"operator"`
	Unit          string   `json:"unit,omitempty"`
	HumanReadable string   `json:"human_readable,omitempty"`

	// Invalid marks thresholds that failed normalization (unparseable
	// numeric value or unrecognized operator). They are excluded from
	// matching but still reported.
	Invalid       bool   `json:"-"`
	InvalidReason string `json:"-"`
}

var numericCleaner = regexp.MustCompile(`[%$€₹,\s]`)

// ParseNumericValue parses a threshold's textual value into a float.
// Currency symbols, percent signs, and thousands separators are stripped
// before parsing.
func ParseNumericValue(value string) (float64, bool) {
	cleaned := numericCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "")
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BoolValue interprets the textual value as a boolean control state.
// REQUIRED-style spellings are true, OPTIONAL-style are false.
func (t *Threshold) BoolValue() (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(t.Value)) {
	case "true", "yes", "required", "mandatory":
		return true, true
	case "false", "no", "optional":
		return false, true
	}
	return false, false
}

// Rule is one clause from a single origin. Rules are produced by the
// extraction collaborator and never mutated by the engine.
type Rule struct {
	ClauseID       string      `json:"clause_id"`
	RegulationName string      `json:"regulation_name,omitempty"`
	SourceName     string      `json:"source_name,omitempty"`
	Category       string      `json:"category,omitempty"`
	Thresholds     []Threshold `json:"thresholds"`

	// Optional metadata preserved from extraction for display and audit.
	ClauseCode      string `json:"clause_code,omitempty"`
	ClauseTitle     string `json:"clause_title,omitempty"`
	Section         string `json:"section,omitempty"`
	EffectiveDate   string `json:"effective_date,omitempty"`
	Description     string `json:"description,omitempty"`
	AppliesTo       string `json:"applies_to,omitempty"`
	Conditions      string `json:"conditions,omitempty"`
	ComplianceCheck string `json:"compliance_check,omitempty"`
	RiskLevel       string `json:"risk_level,omitempty"`
	SourceText      string `json:"source_text,omitempty"`
}

// DisplayName combines the regulation name and clause id for report rows.
func (r *Rule) DisplayName() string {
	name := r.RegulationName
	if name == "" {
		name = r.SourceName
	}
	if name == "" {
		return r.ClauseID
	}
	return fmt.Sprintf("%s (%s)", name, r.ClauseID)
}
