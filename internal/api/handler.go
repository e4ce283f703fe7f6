package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	analyzer    *worker.Worker
	alertPolicy *policy.Engine
	detectorCfg domain.DetectorConfig

	// analysisTimeout caps a single pipeline run.
	analysisTimeout time.Duration
	version         string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *worker.Worker, alertPolicy *policy.Engine, detectorCfg domain.DetectorConfig, analysisTimeout time.Duration, version string) *Handler {
	if analysisTimeout <= 0 {
		analysisTimeout = 30 * time.Second
	}
	return &Handler{
		repo:            repo,
		cache:           cache,
		bus:             bus,
		analyzer:        analyzer,
		alertPolicy:     alertPolicy,
		detectorCfg:     detectorCfg,
		analysisTimeout: analysisTimeout,
		version:         version,
	}
}

// UploadResponse is the response for POST /batches.
type UploadResponse struct {
	BatchID      string            `json:"batchId"`
	Filename     string            `json:"filename,omitempty"`
	TotalRecords int               `json:"totalRecords"`
	Accepted     int               `json:"accepted"`
	Rejected     int               `json:"rejected"`
	RowErrors    []domain.RowError `json:"rowErrors,omitempty"`
}

// UploadBatch handles POST /batches: a CSV upload, either as a multipart
// "file" field or as a raw text/csv body. Valid rows are stored as a batch;
// rejected rows are reported back per row.
func (h *Handler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	body, filename, err := csvBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	defer body.Close()

	result, err := ingest.ParseCSV(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if len(result.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "no valid transactions in upload",
			"rowErrors": result.Errors,
		})
		return
	}

	batch := &domain.Batch{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Filename:     filename,
		TotalRecords: result.TotalRecords,
		Accepted:     len(result.Transactions),
		Rejected:     len(result.Errors),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.repo.SaveBatch(ctx, tenantID, batch, result.Transactions); err != nil {
		slog.Error("failed to save batch", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save batch",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"batchId":  batch.ID,
			"accepted": batch.Accepted,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchIngested, payload); err != nil {
			slog.Error("failed to publish batch ingested", "batch_id", batch.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		BatchID:      batch.ID,
		Filename:     batch.Filename,
		TotalRecords: batch.TotalRecords,
		Accepted:     batch.Accepted,
		Rejected:     batch.Rejected,
		RowErrors:    result.Errors,
	})
}

// csvBody extracts the CSV stream from a request, handling both multipart
// uploads and raw bodies.
func csvBody(r *http.Request) (io.ReadCloser, string, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("multipart upload requires a 'file' field")
		}
		return file, header.Filename, nil
	}

	return r.Body, "", nil
}

// AnalyzeBatch handles POST /batches/{id}/analyze: runs the detection
// pipeline over a stored batch and returns the persisted report.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, h.analysisTimeout)
	defer cancel()

	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch id is required",
		})
		return
	}

	rep, err := h.analyzer.Analyze(ctx, tenantID, batchID)
	if err != nil {
		slog.Error("batch analysis failed", "batch_id", batchID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// Analyze handles POST /analyze: an inline, synchronous run over JSON
// transactions. Nothing is persisted; the report goes straight back.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, h.analysisTimeout)
	defer cancel()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	seen := make(map[string]struct{}, len(req.Transactions))
	for i := range req.Transactions {
		tx := &req.Transactions[i]
		if err := tx.Validate(); err != nil {
			writeError(w, err)
			return
		}
		if _, dup := seen[tx.ID]; dup {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("duplicate transaction_id %q", tx.ID),
			})
			return
		}
		seen[tx.ID] = struct{}{}
	}

	rep, err := report.Run(ctx, req.Transactions, h.detectorCfg)
	if err != nil {
		slog.Error("inline analysis failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// GetBatch handles GET /batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch id is required",
		})
		return
	}

	batch, err := h.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batch)
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
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// ListReports handles GET /reports?limit=n.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	reports, err := h.repo.ListReports(ctx, tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// GetAlertPolicy handles GET /policy.
func (h *Handler) GetAlertPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": h.alertPolicy.Expression(),
	})
}

// UpdateAlertPolicyRequest is the request body for PUT /policy.
type UpdateAlertPolicyRequest struct {
	Expression string `json:"expression"`
}

// UpdateAlertPolicy handles PUT /policy: hot-reloads the alert expression.
func (h *Handler) UpdateAlertPolicy(w http.ResponseWriter, r *http.Request) {
	var req UpdateAlertPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "expression is required",
		})
		return
	}

	if err := h.alertPolicy.Reload(req.Expression); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid policy expression: " + err.Error(),
		})
		return
	}

	slog.Info("alert policy updated", "expression", req.Expression)
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": req.Expression,
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

// contextWithTimeout derives a deadline-bound context for a pipeline run.
func contextWithTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
