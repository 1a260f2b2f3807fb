package store

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func rule(clauseID string, thresholds ...domain.Threshold) *domain.Rule {
	return &domain.Rule{ClauseID: clauseID, Thresholds: thresholds}
}

func TestNewRuleSetStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		rules   []*domain.Rule
		wantErr string
	}{
		{
			name:    "NilRule",
			rules:   []*domain.Rule{nil},
			wantErr: "nil rule",
		},
		{
			name:    "MissingClauseID",
			rules:   []*domain.Rule{rule("")},
			wantErr: "clause_id is required",
		},
		{
			name:    "DuplicateClauseID",
			rules:   []*domain.Rule{rule("REG-001"), rule("REG-001")},
			wantErr: "duplicate clause_id",
		},
		{
			name: "MissingParameter",
			rules: []*domain.Rule{
				rule("REG-001", domain.Threshold{Operator: domain.OpLTE, Value: "100"}),
			},
			wantErr: "parameter is required",
		},
		{
			name: "DuplicateParameter",
			rules: []*domain.Rule{
				rule("REG-001",
					domain.Threshold{Parameter: "limit", Operator: domain.OpLTE, Value: "100"},
					domain.Threshold{Parameter: "limit", Operator: domain.OpGTE, Value: "10"},
				),
			},
			wantErr: "duplicate parameter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet(domain.OriginRegulatory, tt.rules)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewRuleSetNormalization(t *testing.T) {
	t.Run("OperatorAliases", func(t *testing.T) {
		rs, err := NewRuleSet(domain.OriginPolicy, []*domain.Rule{
			rule("POL-001",
				domain.Threshold{Parameter: "a", Operator: "<=", Value: "100"},
				domain.Threshold{Parameter: "b", Operator: ">=", Value: "10"},
				domain.Threshold{Parameter: "c", Operator: "EQUALS", Value: "5"},
			),
		})
		if err != nil {
			t.Fatal(err)
		}
		ths := rs.Rules[0].Thresholds
		if ths[0].Operator != domain.OpLTE || ths[1].Operator != domain.OpGTE || ths[2].Operator != domain.OpEQ {
			t.Errorf("operators not canonicalized: %s %s %s", ths[0].Operator, ths[1].Operator, ths[2].Operator)
		}
	})

	t.Run("NumericValueParsed", func(t *testing.T) {
		rs, err := NewRuleSet(domain.OriginPolicy, []*domain.Rule{
			rule("POL-001", domain.Threshold{Parameter: "limit", Operator: domain.OpLTE, Value: "$10,000"}),
		})
		if err != nil {
			t.Fatal(err)
		}
		th := rs.Rules[0].Thresholds[0]
		if th.ValueNumeric == nil || *th.ValueNumeric != 10000 {
			t.Errorf("expected value_numeric 10000, got %v", th.ValueNumeric)
		}
	})

	t.Run("UnknownOperatorInvalidNotFatal", func(t *testing.T) {
		rs, err := NewRuleSet(domain.OriginPolicy, []*domain.Rule{
			rule("POL-001", domain.Threshold{Parameter: "limit", Operator: "APPROX", Value: "100"}),
		})
		if err != nil {
			t.Fatalf("unknown operator must not be fatal: %v", err)
		}
		th := rs.Rules[0].Thresholds[0]
		if !th.Invalid {
			t.Error("expected threshold marked invalid")
		}
		if !strings.Contains(th.InvalidReason, "ambiguous operator") {
			t.Errorf("InvalidReason = %q", th.InvalidReason)
		}
	})

	t.Run("UnparseableNumericInvalid", func(t *testing.T) {
		rs, err := NewRuleSet(domain.OriginPolicy, []*domain.Rule{
			rule("POL-001", domain.Threshold{Parameter: "limit", Operator: domain.OpLTE, Value: "as appropriate"}),
		})
		if err != nil {
			t.Fatal(err)
		}
		th := rs.Rules[0].Thresholds[0]
		if !th.Invalid {
			t.Error("expected threshold marked invalid")
		}
	})

	t.Run("EqualOverBooleanReclassified", func(t *testing.T) {
		rs, err := NewRuleSet(domain.OriginRegulatory, []*domain.Rule{
			rule("REG-001",
				domain.Threshold{Parameter: "flood_insurance", Operator: domain.OpEQ, Value: "true"},
				domain.Threshold{Parameter: "escrow_account", Operator: domain.OpEQ, Value: "optional"},
			),
		})
		if err != nil {
			t.Fatal(err)
		}
		ths := rs.Rules[0].Thresholds
		if ths[0].Operator != domain.OpBoolRequired {
			t.Errorf("EQ true should become BOOL_REQUIRED, got %s", ths[0].Operator)
		}
		if ths[1].Operator != domain.OpBoolOptional {
			t.Errorf("EQ optional should become BOOL_OPTIONAL, got %s", ths[1].Operator)
		}
		if ths[0].ValueNumeric != nil {
			t.Error("boolean thresholds must not carry a numeric value")
		}
	})
}

func TestCandidatesExcludeInvalid(t *testing.T) {
	rs, err := NewRuleSet(domain.OriginPolicy, []*domain.Rule{
		rule("POL-001",
			domain.Threshold{Parameter: "good", Operator: domain.OpLTE, Value: "100"},
			domain.Threshold{Parameter: "bad", Operator: "APPROX", Value: "100"},
		),
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := len(rs.Candidates()); got != 1 {
		t.Errorf("Candidates() = %d refs, want 1", got)
	}
	if got := len(rs.Thresholds()); got != 2 {
		t.Errorf("Thresholds() = %d refs, want 2", got)
	}
	if rs.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rs.Len())
	}
}

func TestThresholdRefContext(t *testing.T) {
	r := &domain.Rule{ClauseID: "REG-001", Description: "clause description"}
	withText := ThresholdRef{Rule: r, Threshold: &domain.Threshold{HumanReadable: "max amount is 10000"}}
	if withText.Context() != "max amount is 10000" {
		t.Errorf("Context() = %q", withText.Context())
	}
	withoutText := ThresholdRef{Rule: r, Threshold: &domain.Threshold{}}
	if withoutText.Context() != "clause description" {
		t.Errorf("Context() = %q", withoutText.Context())
	}
}

func TestParseRules(t *testing.T) {
	data := []byte(`[
		{
			"clause_id": "REG-001",
			"regulation_name": "Lending Act",
			"category": "transaction_limits",
			"thresholds": [
				{"parameter": "max_transaction_amount", "value": "10000", "operator": "LTE", "unit": "USD"}
			]
		}
	]`)

	rules, err := ParseRules(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ClauseID != "REG-001" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if len(rules[0].Thresholds) != 1 || rules[0].Thresholds[0].Parameter != "max_transaction_amount" {
		t.Fatalf("unexpected thresholds: %+v", rules[0].Thresholds)
	}

	if _, err := ParseRules([]byte(`{"not": "an array"}`)); err == nil {
		t.Error("expected an error for a non-array document")
	}
}
