package domain

import (
	"context"
	"errors"
)

// ErrVerifierUnavailable indicates a transport failure, timeout, or
// malformed response from the semantic verifier backend. Callers must
// fail closed (treat as no-match) rather than abort the run.
var ErrVerifierUnavailable = errors.New("semantic verifier unavailable")

// VerifyRequest asks whether two parameter descriptors refer to the same control.
type VerifyRequest struct {
	RegulatoryParam   string `json:"regulatory_param"`
	RegulatoryContext string `json:"regulatory_context"`
	CandidateParam    string `json:"candidate_param"`
	CandidateContext  string `json:"candidate_context"`
}

// VerifyResult is the verifier's judgment with a short rationale.
type VerifyResult struct {
	Match     bool   `json:"match"`
	Rationale string `json:"rationale"`
}

// Verifier is the semantic oracle consulted for mid-band similarity scores.
// Implementations must be deterministic for identical inputs (fixed
// decoding configuration) so repeated runs produce identical reports.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// VerifierConfig holds settings for the semantic verifier backend.
type VerifierConfig struct {
	// URL of an OpenAI-compatible chat completions endpoint.
	// Empty disables semantic verification (mid-band scores reject).
	URL string `json:"url"`

	APIKey    string `json:"-"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens"`

	// TimeoutSecs bounds each verifier call.
	TimeoutSecs int `json:"timeoutSecs"`

	// Memoize caches (param, param) judgments within a run.
	Memoize bool `json:"memoize"`
}
