// Package worker provides async check processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/store"
)

// Worker processes check requests asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *engine.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing check requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicCheckRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCheckRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processCheck(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicCheckRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processCheck(ctx, msg.TenantID, msg)
}

// CheckRequestMessage is the message payload for an async check run.
type CheckRequestMessage struct {
	RequestID string `json:"requestId"`
	TenantID  string `json:"tenantId"`
	TraceID   string `json:"traceId,omitempty"`

	// Filter optionally restricts which regulatory clauses are checked.
	Filter string `json:"filter,omitempty"`

	// Cutoffs overrides the matcher configuration for this run.
	Cutoffs *domain.MatcherConfig `json:"cutoffs,omitempty"`
}

// CheckResultMessage is published when an async check run finishes.
type CheckResultMessage struct {
	RequestID string `json:"requestId"`
	ReportID  string `json:"reportId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// processCheck runs the full comparison pipeline for one request.
func (w *Worker) processCheck(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req CheckRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse check request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	slog.Debug("processing check request",
		"request_id", req.RequestID,
		"tenant_id", tenantID,
	)

	report, err := w.runCheck(ctx, tenantID, &req)
	if err != nil {
		slog.Error("check run failed",
			"request_id", req.RequestID,
			"tenant_id", tenantID,
			"error", err,
		)
		w.publishResult(ctx, tenantID, domain.TopicReportFailed, &CheckResultMessage{
			RequestID: req.RequestID,
			Error:     err.Error(),
		})
		return err
	}

	w.publishResult(ctx, tenantID, domain.TopicReportCompleted, &CheckResultMessage{
		RequestID: req.RequestID,
		ReportID:  report.ID,
	})

	slog.Info("check request processed",
		"request_id", req.RequestID,
		"tenant_id", tenantID,
		"report_id", report.ID,
		"findings", len(report.Findings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// runCheck loads the stored rule sets, runs the engine, and persists the report.
func (w *Worker) runCheck(ctx context.Context, tenantID string, req *CheckRequestMessage) (*domain.Report, error) {
	regulatory, err := w.loadRuleSet(ctx, tenantID, domain.OriginRegulatory)
	if err != nil {
		return nil, err
	}
	if regulatory.Len() == 0 {
		return nil, fmt.Errorf("no regulatory rules uploaded for tenant %s", tenantID)
	}

	policy, err := w.loadRuleSet(ctx, tenantID, domain.OriginPolicy)
	if err != nil {
		return nil, err
	}
	system, err := w.loadRuleSet(ctx, tenantID, domain.OriginSystem)
	if err != nil {
		return nil, err
	}

	var filter *store.ClauseFilter
	if req.Filter != "" {
		filter, err = store.CompileFilter(req.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid clause filter: %w", err)
		}
	}

	report, err := w.engine.Run(ctx, engine.RunInput{
		TenantID:   tenantID,
		Regulatory: regulatory,
		Policy:     policy,
		System:     system,
		Filter:     filter,
		Cutoffs:    req.Cutoffs,
	})
	if err != nil {
		return nil, err
	}

	if w.repo != nil {
		if err := w.repo.SaveReport(ctx, tenantID, report); err != nil {
			return nil, fmt.Errorf("failed to save report: %w", err)
		}
	}

	return report, nil
}

func (w *Worker) loadRuleSet(ctx context.Context, tenantID string, origin domain.Origin) (*store.RuleSet, error) {
	rules, err := w.repo.ListRules(ctx, tenantID, origin)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", origin, err)
	}
	return store.NewRuleSet(origin, rules)
}

func (w *Worker) publishResult(ctx context.Context, tenantID, topic string, result *CheckResultMessage) {
	payload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish check result",
			"request_id", result.RequestID,
			"topic", topic,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
