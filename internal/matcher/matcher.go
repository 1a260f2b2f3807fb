// Package matcher implements the tiered match resolver: a fast lexical
// score over every candidate, then a semantic verifier consulted only
// for the ambiguous middle band.
package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/similarity"
	"github.com/opensource-finance/kestrel/internal/store"
)

// Match is the resolution for one (regulatory threshold, target rule
// set) pair. Target is nil unless Tier is DIRECT or VERIFIED.
type Match struct {
	Target    *store.ThresholdRef
	Score     float64
	Tier      domain.MatchTier
	Rationale string
}

// Resolver applies the tiered matching policy. Cutoffs are fixed at
// construction so fixtures can exercise different tiering.
type Resolver struct {
	cfg      domain.MatcherConfig
	verifier domain.Verifier

	verifierCalls  atomic.Int64
	verifierErrors atomic.Int64
}

// NewResolver creates a resolver. A nil verifier rejects the middle
// band outright (fail closed).
func NewResolver(cfg domain.MatcherConfig, v domain.Verifier) *Resolver {
	if cfg.DirectThreshold <= 0 {
		cfg.DirectThreshold = 0.70
	}
	if cfg.VerifyFloor <= 0 {
		cfg.VerifyFloor = 0.30
	}
	return &Resolver{cfg: cfg, verifier: v}
}

// Resolve scores every candidate against the regulatory threshold,
// picks the maximum (ties broken by clause_id, then parameter, for
// determinism), and applies the tier policy:
//
//	score >= DirectThreshold          accept, DIRECT
//	VerifyFloor <= score < Direct     ask the verifier once, VERIFIED or REJECTED
//	score < VerifyFloor               NO_MATCH, verifier never consulted
//
// The floor is a false-positive guard: the verifier must not be able to
// rescue pairings that share no lexical relationship.
func (r *Resolver) Resolve(ctx context.Context, reg store.ThresholdRef, candidates []store.ThresholdRef) Match {
	best, bestScore, found := r.topCandidate(reg, candidates)
	if !found || bestScore < r.cfg.VerifyFloor {
		return Match{Score: bestScore, Tier: domain.TierNoMatch, Rationale: "no lexically related candidate"}
	}

	if bestScore >= r.cfg.DirectThreshold {
		return Match{Target: &best, Score: bestScore, Tier: domain.TierDirect, Rationale: "high lexical similarity"}
	}

	result, err := r.verify(ctx, reg, best)
	if err != nil {
		// Fail closed: the run continues, the pairing does not.
		r.verifierErrors.Add(1)
		slog.Warn("semantic verifier unavailable, treating as no match",
			"regulatory_param", reg.Threshold.Parameter,
			"candidate_param", best.Threshold.Parameter,
			"error", err,
		)
		return Match{Score: bestScore, Tier: domain.TierRejected, Rationale: "verifier unavailable"}
	}
	if !result.Match {
		return Match{Score: bestScore, Tier: domain.TierRejected, Rationale: result.Rationale}
	}
	return Match{Target: &best, Score: bestScore, Tier: domain.TierVerified, Rationale: result.Rationale}
}

// topCandidate returns the highest scoring candidate. Ordering of equal
// scores is by clause_id then parameter ascending.
func (r *Resolver) topCandidate(reg store.ThresholdRef, candidates []store.ThresholdRef) (store.ThresholdRef, float64, bool) {
	var (
		best      store.ThresholdRef
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		score := similarity.Score(reg.Threshold.Parameter, c.Threshold.Parameter)
		if !found || score > bestScore || (score == bestScore && less(c, best)) {
			best = c
			bestScore = score
			found = true
		}
	}
	return best, bestScore, found
}

func less(a, b store.ThresholdRef) bool {
	if a.Rule.ClauseID != b.Rule.ClauseID {
		return a.Rule.ClauseID < b.Rule.ClauseID
	}
	return a.Threshold.Parameter < b.Threshold.Parameter
}

func (r *Resolver) verify(ctx context.Context, reg, candidate store.ThresholdRef) (domain.VerifyResult, error) {
	if r.verifier == nil {
		return domain.VerifyResult{}, errors.New("no verifier configured")
	}
	r.verifierCalls.Add(1)
	return r.verifier.Verify(ctx, domain.VerifyRequest{
		RegulatoryParam:   reg.Threshold.Parameter,
		RegulatoryContext: reg.Context(),
		CandidateParam:    candidate.Threshold.Parameter,
		CandidateContext:  candidate.Context(),
	})
}

// VerifierCalls returns the number of verifier invocations so far.
func (r *Resolver) VerifierCalls() int64 {
	return r.verifierCalls.Load()
}

// VerifierErrors returns the number of fail-closed verifier errors so far.
func (r *Resolver) VerifierErrors() int64 {
	return r.verifierErrors.Load()
}
