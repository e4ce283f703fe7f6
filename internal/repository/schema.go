package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    filename TEXT,
    total_records INTEGER NOT NULL,
    accepted INTEGER NOT NULL,
    rejected INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(tenant_id, created_at);
`

const schemaBatchTransactions = `
CREATE TABLE IF NOT EXISTS batch_transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_batch_transactions_batch ON batch_transactions(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_batch_transactions_sender ON batch_transactions(tenant_id, sender_id);
CREATE INDEX IF NOT EXISTS idx_batch_transactions_receiver ON batch_transactions(tenant_id, receiver_id);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    suspicious_accounts TEXT NOT NULL,
    fraud_rings TEXT NOT NULL,
    summary TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_batch ON reports(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaBatchTransactions,
		schemaReports,
	}
}
