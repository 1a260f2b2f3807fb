// Package verifier implements the semantic verifier adapter: a natural
// language oracle asked whether two parameter descriptors refer to the
// same control. The backend is any OpenAI-compatible chat completions
// endpoint invoked with temperature 0 so identical inputs yield
// identical judgments.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const verifySystemPrompt = `You decide whether two financial control parameters refer to EXACTLY the same metric or requirement.

Rules:
- Only answer match=true if they are exactly the same concept
- Answer match=false if they are different, related but not identical, or if unsure

Return ONLY valid JSON, no markdown fences, no commentary:
{"match": true or false, "rationale": "<one brief sentence>"}`

// HTTPVerifier calls a chat-completions endpoint with fixed decoding
// configuration. Failures surface as domain.ErrVerifierUnavailable so
// callers can fail closed without aborting the run.
type HTTPVerifier struct {
	cfg    domain.VerifierConfig
	client *http.Client
}

// NewHTTP creates a verifier against the configured endpoint.
func NewHTTP(cfg domain.VerifierConfig) (*HTTPVerifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("verifier URL is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Verify asks the oracle about one parameter pair.
func (v *HTTPVerifier) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	userPrompt := fmt.Sprintf(
		"Parameter 1: %s\nContext 1: %s\n\nParameter 2: %s\nContext 2: %s",
		req.RegulatoryParam, req.RegulatoryContext,
		req.CandidateParam, req.CandidateContext,
	)

	body, _ := json.Marshal(map[string]any{
		"model": v.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": verifySystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  v.cfg.MaxTokens,
		"temperature": 0,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("%w: create request: %v", domain.ErrVerifierUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("%w: %v", domain.ErrVerifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return domain.VerifyResult{}, fmt.Errorf("%w: HTTP %d: %s",
			domain.ErrVerifierUnavailable, resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &completion); err != nil || len(completion.Choices) == 0 {
		return domain.VerifyResult{}, fmt.Errorf("%w: empty completion response", domain.ErrVerifierUnavailable)
	}

	return parseJudgment(completion.Choices[0].Message.Content)
}

// parseJudgment extracts the match/rationale JSON from the model output.
func parseJudgment(raw string) (domain.VerifyResult, error) {
	raw = cleanJSON(raw)

	var result domain.VerifyResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.VerifyResult{}, fmt.Errorf("%w: cannot parse judgment: %s",
			domain.ErrVerifierUnavailable, truncate(raw, 200))
	}
	return result, nil
}

// cleanJSON strips markdown fences and leading/trailing whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
