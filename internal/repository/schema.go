package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    tenant_id TEXT NOT NULL,
    origin TEXT NOT NULL,
    clause_id TEXT NOT NULL,
    regulation_name TEXT,
    category TEXT,
    payload TEXT NOT NULL,
    position INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, origin, clause_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_tenant_origin ON rules(tenant_id, origin);
CREATE INDEX IF NOT EXISTS idx_rules_category ON rules(tenant_id, origin, category);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    findings TEXT NOT NULL,
    summary TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(tenant_id, generated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRules,
		schemaReports,
	}
}
