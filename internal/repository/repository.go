// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceRuleSet atomically swaps the stored rule set for an origin.
// Input order is preserved via the position column so a reloaded store
// produces findings in the same report order.
func (r *SQLRepository) ReplaceRuleSet(ctx context.Context, tenantID string, origin domain.Origin, rules []*domain.Rule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := `DELETE FROM rules WHERE tenant_id = ? AND origin = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(deleteQuery), tenantID, origin); err != nil {
		return fmt.Errorf("failed to clear rule set: %w", err)
	}

	insertQuery := `
		INSERT INTO rules (
			tenant_id, origin, clause_id, regulation_name, category, payload, position, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	for i, rule := range rules {
		payload, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("failed to encode rule %s: %w", rule.ClauseID, err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(insertQuery),
			tenantID, origin, rule.ClauseID, rule.RegulationName, rule.Category,
			string(payload), i, now,
		); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rule.ClauseID, err)
		}
	}

	return tx.Commit()
}

// ListRules retrieves the rule set for an origin in upload order.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string, origin domain.Origin) ([]*domain.Rule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload
		FROM rules
		WHERE tenant_id = ? AND origin = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var rule domain.Rule
		if err := json.Unmarshal([]byte(payload), &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule record: %w", err)
		}
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveReport stores a compliance report with tenant isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	findings, _ := json.Marshal(report.Findings)
	summary, _ := json.Marshal(report.Summary)
	metadata, _ := json.Marshal(report.Metadata)

	query := `
		INSERT INTO reports (
			id, tenant_id, generated_at, findings, summary, metadata
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.GeneratedAt,
		string(findings), string(summary), string(metadata),
	)
	return err
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, generated_at, findings, summary, metadata
		FROM reports
		WHERE tenant_id = ? AND id = ?
	`

	var report domain.Report
	var findings, summary, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(
		&report.ID, &report.TenantID, &report.GeneratedAt,
		&findings, &summary, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(findings), &report.Findings); err != nil {
		return nil, fmt.Errorf("failed to decode report findings: %w", err)
	}
	json.Unmarshal([]byte(summary), &report.Summary)
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// ListReports retrieves report metadata for a tenant, newest first.
// Findings are omitted to keep listings light.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string) ([]*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, generated_at, summary, metadata
		FROM reports
		WHERE tenant_id = ?
		ORDER BY generated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var report domain.Report
		var summary, metadata string

		if err := rows.Scan(
			&report.ID, &report.TenantID, &report.GeneratedAt,
			&summary, &metadata,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(summary), &report.Summary)
		json.Unmarshal([]byte(metadata), &report.Metadata)
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
