// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
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
		return nil, fmt.Errorf("%w: unsupported driver: %s", domain.ErrInvalidConfig, cfg.Driver)
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

// SaveBatch stores a batch and its transactions atomically with tenant
// isolation. Either all rows land or none do.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batch *domain.Batch, txs []domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	batchQuery := `
		INSERT INTO batches (
			id, tenant_id, filename, total_records, accepted, rejected, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := dbTx.ExecContext(ctx, r.rebind(batchQuery),
		batch.ID, tenantID, batch.Filename,
		batch.TotalRecords, batch.Accepted, batch.Rejected,
		batch.CreatedAt,
	); err != nil {
		return err
	}

	txQuery := `
		INSERT INTO batch_transactions (
			id, tenant_id, batch_id, sender_id, receiver_id, amount, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := dbTx.PrepareContext(ctx, r.rebind(txQuery))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range txs {
		tx := &txs[i]
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tenantID, batch.ID,
			tx.SenderID, tx.ReceiverID,
			tx.Amount, tx.Timestamp,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetBatch retrieves a batch by ID with tenant isolation.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.Batch, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, filename, total_records, accepted, rejected, created_at
		FROM batches
		WHERE tenant_id = ? AND id = ?
	`

	var batch domain.Batch
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(
		&batch.ID, &batch.TenantID, &batch.Filename,
		&batch.TotalRecords, &batch.Accepted, &batch.Rejected,
		&batch.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &batch, nil
}

// GetBatchTransactions retrieves the transactions of a batch in timestamp
// order with tenant isolation.
func (r *SQLRepository) GetBatchTransactions(ctx context.Context, tenantID string, batchID string) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, sender_id, receiver_id, amount, timestamp
		FROM batch_transactions
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY timestamp, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.SenderID, &tx.ReceiverID,
			&tx.Amount, &tx.Timestamp,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// SaveReport stores an analysis report with tenant isolation. The account,
// ring and summary sections are stored as JSON documents; the report is
// immutable once written.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	accounts, err := json.Marshal(report.SuspiciousAccounts)
	if err != nil {
		return fmt.Errorf("failed to encode suspicious accounts: %w", err)
	}
	rings, err := json.Marshal(report.FraudRings)
	if err != nil {
		return fmt.Errorf("failed to encode fraud rings: %w", err)
	}
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, tenant_id, batch_id, suspicious_accounts, fraud_rings, summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.BatchID,
		string(accounts), string(rings), string(summary),
		report.CreatedAt,
	)
	return err
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, batch_id, suspicious_accounts, fraud_rings, summary, created_at
		FROM reports
		WHERE tenant_id = ? AND id = ?
	`

	report, err := r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return report, err
}

// ListReports retrieves the most recent reports for a tenant, newest first.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, limit int) ([]*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, batch_id, suspicious_accounts, fraud_rings, summary, created_at
		FROM reports
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanReport(row scanner) (*domain.Report, error) {
	var report domain.Report
	var accounts, rings, summary string

	if err := row.Scan(
		&report.ID, &report.TenantID, &report.BatchID,
		&accounts, &rings, &summary,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(accounts), &report.SuspiciousAccounts); err != nil {
		return nil, fmt.Errorf("failed to parse suspicious accounts for %s: %w", report.ID, err)
	}
	if err := json.Unmarshal([]byte(rings), &report.FraudRings); err != nil {
		return nil, fmt.Errorf("failed to parse fraud rings for %s: %w", report.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &report.Summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary for %s: %w", report.ID, err)
	}

	return &report, nil
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
