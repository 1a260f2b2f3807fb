package verifier

import (
	"context"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Stub is a deterministic in-process Verifier for tests and offline
// runs. Judgments come from a fixed table of parameter pairs; anything
// not listed is a non-match.
type Stub struct {
	// Pairs maps "regulatoryParam|candidateParam" to a match verdict.
	Pairs map[string]bool

	// Err, when set, is returned from every call to exercise the
	// fail-closed path.
	Err error

	calls atomic.Int64
}

// Verify returns the tabled judgment for the parameter pair.
func (s *Stub) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return domain.VerifyResult{}, s.Err
	}
	if s.Pairs[req.RegulatoryParam+"|"+req.CandidateParam] {
		return domain.VerifyResult{Match: true, Rationale: "same control"}, nil
	}
	return domain.VerifyResult{Match: false, Rationale: "different controls"}, nil
}

// Calls returns how many times Verify was invoked.
func (s *Stub) Calls() int64 {
	return s.calls.Load()
}
