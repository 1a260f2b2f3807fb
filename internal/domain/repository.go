package domain

import (
	"context"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Rule set operations. ReplaceRuleSet swaps the full rule set for an
	// origin atomically - uploads are whole-document replacements.
	ReplaceRuleSet(ctx context.Context, tenantID string, origin Origin, rules []*Rule) error
	ListRules(ctx context.Context, tenantID string, origin Origin) ([]*Rule, error)

	// Report operations
	SaveReport(ctx context.Context, tenantID string, report *Report) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*Report, error)
	ListReports(ctx context.Context, tenantID string) ([]*Report, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
