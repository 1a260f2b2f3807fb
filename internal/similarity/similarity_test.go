package similarity

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"LTV Ratio", "ltvratio"},
		{"ltv_ratio", "ltvratio"},
		{"max-transaction-amount", "maxtransactionamount"},
		{"  KYC  ", "kyc"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestScoreExactMatch(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"max_transaction_amount", "max_transaction_amount"},
		{"max_transaction_amount", "Max Transaction Amount"},
		{"ltv_ratio", "LTV-Ratio"},
	}

	for _, tt := range tests {
		if got := Score(tt.a, tt.b); got != 1.0 {
			t.Errorf("Score(%q, %q) = %v, want 1.0", tt.a, tt.b, got)
		}
	}
}

func TestScoreContainment(t *testing.T) {
	got := Score("transaction_amount", "max_transaction_amount_usd")
	if got != 0.85 {
		t.Errorf("expected containment score 0.85, got %v", got)
	}
}

func TestScoreWordOverlap(t *testing.T) {
	// Shared meaningful words floor the score at 0.7 even when the
	// strings differ substantially.
	got := Score("single_transaction_limit", "transaction_cap_per_customer")
	if got < 0.7 {
		t.Errorf("expected word-overlap floor 0.7, got %v", got)
	}
	if got >= 1.0 {
		t.Errorf("expected partial overlap below 1.0, got %v", got)
	}
}

func TestScoreGenericWordsCarryNoSignal(t *testing.T) {
	// "max" and "count" alone should not connect unrelated parameters.
	got := Score("max_count", "max_ratio")
	if got >= 0.7 {
		t.Errorf("expected generic-only overlap below the floor, got %v", got)
	}
}

func TestScoreUnrelated(t *testing.T) {
	got := Score("flood_insurance_required", "apr_disclosure_days")
	if got >= 0.3 {
		t.Errorf("expected unrelated parameters well below the verify floor, got %v", got)
	}
}

func TestScoreSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"max_transaction_amount", "transaction_amount_cap"},
		{"ltv_ratio", "loan_to_value"},
		{"kyc_refresh_period", "kyc_refresh_period_months"},
		{"abc", "xyz"},
	}

	for _, p := range pairs {
		ab := Score(p[0], p[1])
		ba := Score(p[1], p[0])
		if ab != ba {
			t.Errorf("Score(%q, %q) = %v but Score(%q, %q) = %v", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"max_amount", "min_amount"},
		{"x", ""},
		{"", ""},
		{"identity_verification", "identity_verification"},
	}

	for _, p := range pairs {
		got := Score(p[0], p[1])
		if got < 0 || got > 1 {
			t.Errorf("Score(%q, %q) = %v out of [0,1]", p[0], p[1], got)
		}
	}
}

func TestScoreEmptyInput(t *testing.T) {
	if got := Score("", "max_amount"); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
	if got := Score("max_amount", ""); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if Score("retention_period", "record_retention_days") != Score("retention_period", "record_retention_days") {
			t.Fatal("score not deterministic")
		}
	}
}
