// Package engine orchestrates the compliance pipeline: for each
// regulatory threshold, resolve a match in the policy and system rule
// sets independently, evaluate the matched thresholds, and classify the
// outcome into a finding. Findings accumulate into a report whose row
// order mirrors the regulatory input order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/evaluator"
	"github.com/opensource-finance/kestrel/internal/findings"
	"github.com/opensource-finance/kestrel/internal/matcher"
	"github.com/opensource-finance/kestrel/internal/store"
)

// EngineVersion tags report metadata with the engine release.
const EngineVersion = "kestrel-1.0"

// Engine runs compliance checks. It is stateless between runs; every
// run gets its own resolver so verifier accounting is per-run.
type Engine struct {
	cfg      domain.MatcherConfig
	verifier domain.Verifier
	workers  int
}

// New creates an engine with the given matcher cutoffs and verifier.
func New(cfg domain.MatcherConfig, v domain.Verifier, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Engine{cfg: cfg, verifier: v, workers: maxWorkers}
}

// RunInput is one check run over three rule sets.
type RunInput struct {
	TenantID   string
	Regulatory *store.RuleSet
	Policy     *store.RuleSet
	System     *store.RuleSet

	// Filter optionally restricts which regulatory clauses are checked.
	Filter *store.ClauseFilter

	// Cutoffs overrides the engine's matcher configuration when non-nil.
	Cutoffs *domain.MatcherConfig
}

// task is one regulatory threshold to check, carrying its output slot.
type task struct {
	idx int
	ref store.ThresholdRef
}

// Run executes the full pipeline and returns the report. Regulatory
// thresholds are processed in parallel; each touches only read-only
// rule data plus its own slot in the findings slice, so the report
// order is deterministic regardless of completion order.
func (e *Engine) Run(ctx context.Context, in RunInput) (*domain.Report, error) {
	start := time.Now()

	if in.Regulatory == nil {
		return nil, fmt.Errorf("regulatory rule set is required")
	}

	cfg := e.cfg
	if in.Cutoffs != nil {
		cfg = *in.Cutoffs
	}
	resolver := matcher.NewResolver(cfg, e.verifier)

	regulatory := in.Regulatory.Rules
	if in.Filter != nil {
		regulatory = in.Filter.Apply(regulatory)
	}

	policyCandidates := candidates(in.Policy)
	systemCandidates := candidates(in.System)

	// Collect every regulatory threshold in input order, including
	// invalid ones: each gets a report row, failures embedded in the
	// explanation rather than the row being dropped.
	var tasks []task
	for _, rule := range regulatory {
		for j := range rule.Thresholds {
			tasks = append(tasks, task{
				idx: len(tasks),
				ref: store.ThresholdRef{Rule: rule, Threshold: &rule.Thresholds[j]},
			})
		}
	}

	results := make([]domain.ComplianceFinding, len(tasks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[t.idx] = e.checkThreshold(ctx, resolver, t.ref, policyCandidates, systemCandidates)
		}(t)
	}
	wg.Wait()

	report := &domain.Report{
		ID:          uuid.New().String(),
		TenantID:    in.TenantID,
		GeneratedAt: time.Now().UTC(),
		Findings:    results,
	}
	report.Summarize()
	report.Metadata = domain.RunMetadata{
		RunID:           report.ID,
		EngineVersion:   EngineVersion,
		FilterExpr:      in.Filter.Expr(),
		ClausesChecked:  len(regulatory),
		ThresholdsDone:  len(tasks),
		VerifierCalls:   resolver.VerifierCalls(),
		VerifierErrors:  resolver.VerifierErrors(),
		DurationMs:      time.Since(start).Milliseconds(),
		PolicyRuleCount: ruleCount(in.Policy),
		SystemRuleCount: ruleCount(in.System),
	}

	slog.Info("check run complete",
		"tenant_id", in.TenantID,
		"report_id", report.ID,
		"clauses", len(regulatory),
		"thresholds", len(tasks),
		"verifier_calls", report.Metadata.VerifierCalls,
		"duration_ms", report.Metadata.DurationMs,
	)

	return report, nil
}

// checkThreshold runs match -> evaluate -> classify for one regulatory
// threshold against both target rule sets independently.
func (e *Engine) checkThreshold(ctx context.Context, resolver *matcher.Resolver, reg store.ThresholdRef, policy, system []store.ThresholdRef) domain.ComplianceFinding {
	if reg.Threshold.Invalid {
		// Unparseable regulatory thresholds cannot be compared; the
		// row still appears with the failure reason on both sides.
		side := domain.SideResult{
			Verdict:     domain.VerdictNoMatch,
			Tier:        domain.TierNoMatch,
			Explanation: "regulatory threshold invalid: " + reg.Threshold.InvalidReason,
		}
		return findings.Generate(findings.Input{
			Rule:      reg.Rule,
			Threshold: reg.Threshold,
			Policy:    side,
			System:    side,
		})
	}

	return findings.Generate(findings.Input{
		Rule:      reg.Rule,
		Threshold: reg.Threshold,
		Policy:    e.checkSide(ctx, resolver, reg, policy),
		System:    e.checkSide(ctx, resolver, reg, system),
	})
}

// checkSide resolves and evaluates one target rule set.
func (e *Engine) checkSide(ctx context.Context, resolver *matcher.Resolver, reg store.ThresholdRef, candidates []store.ThresholdRef) domain.SideResult {
	match := resolver.Resolve(ctx, reg, candidates)
	if match.Target == nil {
		return domain.SideResult{
			Verdict:     domain.VerdictNoMatch,
			Tier:        match.Tier,
			Score:       match.Score,
			Explanation: match.Rationale,
		}
	}

	result := evaluator.Evaluate(reg.Threshold, match.Target.Threshold)
	return domain.SideResult{
		Verdict:     result.Verdict,
		Tier:        match.Tier,
		Score:       match.Score,
		ClauseID:    match.Target.Rule.ClauseID,
		Parameter:   match.Target.Threshold.Parameter,
		Explanation: result.Explanation,
	}
}

func candidates(s *store.RuleSet) []store.ThresholdRef {
	if s == nil {
		return nil
	}
	return s.Candidates()
}

func ruleCount(s *store.RuleSet) int {
	if s == nil {
		return 0
	}
	return s.Len()
}
