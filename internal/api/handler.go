package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/store"
	"github.com/opensource-finance/kestrel/internal/verifier"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	verifier domain.Verifier
	config   *domain.Config
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, v domain.Verifier, cfg *domain.Config, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		verifier: v,
		config:   cfg,
		version:  version,
	}
}

// UploadResponse is the response for POST /rulesets/{origin}.
type UploadResponse struct {
	Origin            string `json:"origin"`
	RuleCount         int    `json:"ruleCount"`
	ThresholdCount    int    `json:"thresholdCount"`
	InvalidThresholds int    `json:"invalidThresholds"`
}

// UploadRuleSet handles POST /rulesets/{origin}. The body is a JSON
// array of rule records; the upload atomically replaces any previously
// stored rule set for the origin.
func (h *Handler) UploadRuleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	origin, err := domain.ParseOrigin(chi.URLParam(r, "origin"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	rules, err := store.ParseRules(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Normalize and validate before persisting. Structural violations
	// reject the whole upload; value-level problems mark individual
	// thresholds invalid and are reported back in the counts.
	ruleSet, err := store.NewRuleSet(origin, rules)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.ReplaceRuleSet(ctx, tenantID, origin, ruleSet.Rules); err != nil {
		slog.Error("failed to store rule set",
			"tenant_id", tenantID,
			"origin", origin,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store rule set",
		})
		return
	}

	all := ruleSet.Thresholds()
	valid := ruleSet.Candidates()

	slog.Info("rule set uploaded",
		"tenant_id", tenantID,
		"origin", origin,
		"rules", ruleSet.Len(),
		"thresholds", len(all),
		"invalid_thresholds", len(all)-len(valid),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Origin:            string(origin),
		RuleCount:         ruleSet.Len(),
		ThresholdCount:    len(all),
		InvalidThresholds: len(all) - len(valid),
	})
}

// GetRuleSet handles GET /rulesets/{origin}.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	origin, err := domain.ParseOrigin(chi.URLParam(r, "origin"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	rules, err := h.repo.ListRules(ctx, tenantID, origin)
	if err != nil {
		slog.Error("failed to list rules", "origin", origin, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"origin": origin,
		"count":  len(rules),
		"rules":  rules,
	})
}

// CheckRequest is the request body for POST /check.
type CheckRequest struct {
	// Filter is an optional CEL expression restricting which regulatory
	// clauses are checked, e.g. `category == "transaction_limits"`.
	Filter string `json:"filter,omitempty"`

	// Cutoffs overrides the matcher configuration for this run.
	Cutoffs *domain.MatcherConfig `json:"cutoffs,omitempty"`

	// Async queues the run on the event bus instead of executing inline.
	Async bool `json:"async,omitempty"`
}

// AsyncCheckResponse is the response for an async POST /check.
type AsyncCheckResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// Check handles POST /check requests. Runs the comparison pipeline over
// the stored rule sets, either synchronously or via the event bus.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CheckRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	// Validate the filter up front so async callers get immediate feedback.
	var filter *store.ClauseFilter
	if req.Filter != "" {
		var err error
		filter, err = store.CompileFilter(req.Filter)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid clause filter: " + err.Error(),
			})
			return
		}
	}

	if h.cache != nil {
		if n, err := h.cache.IncrementCounter(ctx, tenantID, "check_runs", 24*time.Hour); err == nil {
			slog.Debug("check run counter", "tenant_id", tenantID, "runs_today", n)
		}
	}

	if req.Async {
		h.checkAsync(w, r, tenantID, &req)
		return
	}

	report, err := h.runCheck(ctx, tenantID, filter, req.Cutoffs)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveReport(ctx, tenantID, report); err != nil {
		slog.Error("failed to save report",
			"tenant_id", tenantID,
			"report_id", report.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save report",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// checkAsync queues the run on the event bus.
func (h *Handler) checkAsync(w http.ResponseWriter, r *http.Request, tenantID string, req *CheckRequest) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	msg := worker.CheckRequestMessage{
		RequestID: uuid.New().String(),
		TenantID:  tenantID,
		TraceID:   GetTraceID(ctx),
		Filter:    req.Filter,
		Cutoffs:   req.Cutoffs,
	}

	payload, _ := json.Marshal(msg)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicCheckRequested, payload); err != nil {
		slog.Error("failed to queue check request",
			"tenant_id", tenantID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue check request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, AsyncCheckResponse{
		RequestID: msg.RequestID,
		Status:    "queued",
	})
}

// runCheck loads the stored rule sets and executes the pipeline inline.
func (h *Handler) runCheck(ctx context.Context, tenantID string, filter *store.ClauseFilter, cutoffs *domain.MatcherConfig) (*domain.Report, error) {
	regulatory, err := h.loadRuleSet(ctx, tenantID, domain.OriginRegulatory)
	if err != nil {
		return nil, err
	}
	if regulatory.Len() == 0 {
		return nil, fmt.Errorf("no regulatory rules uploaded")
	}

	policy, err := h.loadRuleSet(ctx, tenantID, domain.OriginPolicy)
	if err != nil {
		return nil, err
	}
	system, err := h.loadRuleSet(ctx, tenantID, domain.OriginSystem)
	if err != nil {
		return nil, err
	}

	eng := engine.New(h.config.Matcher, h.verifierFor(tenantID), h.config.Engine.MaxWorkers)

	return eng.Run(ctx, engine.RunInput{
		TenantID:   tenantID,
		Regulatory: regulatory,
		Policy:     policy,
		System:     system,
		Filter:     filter,
		Cutoffs:    cutoffs,
	})
}

// verifierFor wraps the base verifier with per-tenant memoization when
// a cache is configured.
func (h *Handler) verifierFor(tenantID string) domain.Verifier {
	if h.verifier == nil {
		return nil
	}
	if h.config.Verifier.Memoize && h.cache != nil {
		return verifier.NewMemoized(h.verifier, h.cache, tenantID)
	}
	return h.verifier
}

func (h *Handler) loadRuleSet(ctx context.Context, tenantID string, origin domain.Origin) (*store.RuleSet, error) {
	rules, err := h.repo.ListRules(ctx, tenantID, origin)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rules: %w", origin, err)
	}
	return store.NewRuleSet(origin, rules)
}

// GetReport handles GET /reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if reportID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "report id is required",
		})
		return
	}

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// GetReportCSV handles GET /reports/{id}/csv, rendering the report in
// the six-column comparison layout.
func (h *Handler) GetReportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="compliance-report-%s.csv"`, reportID))

	if err := report.WriteCSV(w, rep); err != nil {
		slog.Error("failed to write report CSV",
			"report_id", reportID,
			"error", err,
		)
	}
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	reports, err := h.repo.ListReports(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(reports),
		"reports": reports,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
