// Package worker provides async batch analysis from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/report"
)

// Worker consumes analysis requests and runs the detection pipeline
// asynchronously, persisting the resulting report.
type Worker struct {
	bus         domain.EventBus
	repo        domain.Repository
	cache       domain.Cache
	alertPolicy *policy.Engine
	detectorCfg domain.DetectorConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// ReportCacheTTL bounds how long an assembled report is cached per batch.
	ReportCacheTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, alertPolicy *policy.Engine, detectorCfg domain.DetectorConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		repo:        repo,
		cache:       cache,
		alertPolicy: alertPolicy,
		detectorCfg: detectorCfg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing analysis requests for the given tenants.
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
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// AnalysisRequest is the message payload for an async analysis run.
type AnalysisRequest struct {
	BatchID  string `json:"batchId"`
	TenantID string `json:"tenantId"`
	TraceID  string `json:"traceId,omitempty"`
}

// AnalysisCompleted is published when a run finishes.
type AnalysisCompleted struct {
	BatchID    string `json:"batchId"`
	ReportID   string `json:"reportId"`
	RingCount  int    `json:"ringCount"`
	Flagged    int    `json:"flagged"`
	AlertCount int    `json:"alertCount"`
}

// AnalysisFailed is published when a run aborts.
type AnalysisFailed struct {
	BatchID string `json:"batchId"`
	Reason  string `json:"reason"`
}

// processRequest loads the batch, runs the pipeline, saves the report and
// publishes the outcome. A failed run publishes to the failed topic and
// persists nothing.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	slog.Debug("processing analysis request",
		"batch_id", req.BatchID,
		"tenant_id", tenantID,
	)

	rep, err := w.Analyze(ctx, tenantID, req.BatchID)
	if err != nil {
		w.publishFailure(ctx, tenantID, req.BatchID, err)
		return err
	}

	alerts, err := w.alertPolicy.Evaluate(rep.SuspiciousAccounts)
	if err != nil {
		slog.Error("alert policy evaluation failed",
			"batch_id", req.BatchID,
			"error", err,
		)
	}
	for _, alert := range alerts {
		payload, _ := json.Marshal(alert)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"account_id", alert.AccountID,
				"error", err,
			)
		}
	}

	completed, _ := json.Marshal(AnalysisCompleted{
		BatchID:    req.BatchID,
		ReportID:   rep.ID,
		RingCount:  rep.Summary.FraudRingsDetected,
		Flagged:    rep.Summary.SuspiciousAccountsFlagged,
		AlertCount: len(alerts),
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, completed); err != nil {
		slog.Error("failed to publish completion",
			"batch_id", req.BatchID,
			"error", err,
		)
	}

	slog.Info("analysis request processed",
		"batch_id", req.BatchID,
		"tenant_id", tenantID,
		"report_id", rep.ID,
		"rings", rep.Summary.FraudRingsDetected,
		"alerts", len(alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Analyze runs the full pipeline for a stored batch and persists the report.
// A cached report for the batch is returned without re-running the pipeline.
func (w *Worker) Analyze(ctx context.Context, tenantID, batchID string) (*domain.Report, error) {
	if w.cache != nil {
		cached, err := w.cache.GetReport(ctx, tenantID, batchID)
		if err != nil {
			slog.Warn("report cache read failed",
				"batch_id", batchID,
				"error", err,
			)
		}
		if cached != nil {
			slog.Debug("report cache hit", "batch_id", batchID)
			return cached, nil
		}
	}

	if _, err := w.repo.GetBatch(ctx, tenantID, batchID); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	txs, err := w.repo.GetBatchTransactions(ctx, tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	rep, err := report.Run(ctx, txs, w.detectorCfg)
	if err != nil {
		return nil, err
	}

	rep.ID = uuid.New().String()
	rep.TenantID = tenantID
	rep.BatchID = batchID
	rep.CreatedAt = time.Now().UTC()

	if err := w.repo.SaveReport(ctx, tenantID, rep); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	if w.cache != nil {
		if err := w.cache.SetReport(ctx, tenantID, batchID, rep, 5*time.Minute); err != nil {
			slog.Warn("report cache write failed",
				"batch_id", batchID,
				"error", err,
			)
		}
	}

	return rep, nil
}

func (w *Worker) publishFailure(ctx context.Context, tenantID, batchID string, cause error) {
	payload, _ := json.Marshal(AnalysisFailed{
		BatchID: batchID,
		Reason:  cause.Error(),
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisFailed, payload); err != nil {
		slog.Error("failed to publish failure",
			"batch_id", batchID,
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
