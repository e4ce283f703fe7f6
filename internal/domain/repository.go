package domain

import (
	"context"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Batch operations: a batch is an uploaded transaction set.
	SaveBatch(ctx context.Context, tenantID string, batch *Batch, txs []Transaction) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*Batch, error)
	GetBatchTransactions(ctx context.Context, tenantID string, batchID string) ([]Transaction, error)

	// Report operations: reports are the only artifact a run persists.
	SaveReport(ctx context.Context, tenantID string, report *Report) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*Report, error)
	ListReports(ctx context.Context, tenantID string, limit int) ([]*Report, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
