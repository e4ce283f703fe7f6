package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

const testCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"t1,A,B,100,2025-03-01T10:00:00Z\n" +
	"t2,B,C,100,2025-03-01T11:00:00Z\n" +
	"t3,C,A,100,2025-03-01T12:00:00Z\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cacheImpl := cache.NewLRUCache(100)
	busImpl := bus.NewChannelBus(100)
	t.Cleanup(func() { busImpl.Close() })

	alertPolicy, err := policy.NewEngine("")
	if err != nil {
		t.Fatalf("failed to compile policy: %v", err)
	}

	detectorCfg := domain.DefaultDetectorConfig()
	analyzer := worker.NewWorker(busImpl, repo, cacheImpl, alertPolicy, detectorCfg)

	cfg := domain.DefaultConfig().Server
	return NewServer(cfg, repo, cacheImpl, busImpl, analyzer, alertPolicy, detectorCfg, "test")
}

func doRequest(t *testing.T, srv *Server, method, path, contentType string, body []byte, tenant string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func uploadCSV(t *testing.T, srv *Server, tenant, csv string) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte(csv), tenant)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	decode(t, rec, &resp)
	return resp.BatchID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/health", "", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]string
		decode(t, rec, &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %q", resp["status"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/ready", "", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestTenantRequired(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte(testCSV), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", rec.Code)
	}
}

func TestUploadBatch(t *testing.T) {
	srv := newTestServer(t)

	t.Run("ValidCSV", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte(testCSV), "tenant-1")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp UploadResponse
		decode(t, rec, &resp)
		if resp.BatchID == "" {
			t.Error("expected a batch id")
		}
		if resp.Accepted != 3 || resp.Rejected != 0 || resp.TotalRecords != 3 {
			t.Errorf("unexpected counts: %+v", resp)
		}
	})

	t.Run("PartiallyValidCSV", func(t *testing.T) {
		csv := testCSV + "t4,X,X,100,2025-03-01T13:00:00Z\n"
		rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte(csv), "tenant-1")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		var resp UploadResponse
		decode(t, rec, &resp)
		if resp.Accepted != 3 || resp.Rejected != 1 {
			t.Errorf("unexpected counts: %+v", resp)
		}
		if len(resp.RowErrors) != 1 || resp.RowErrors[0].RowNumber != 5 {
			t.Errorf("unexpected row errors: %+v", resp.RowErrors)
		}
	})

	t.Run("NoValidRows", func(t *testing.T) {
		csv := "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
			"t1,A,A,100,2025-03-01T10:00:00Z\n"
		rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte(csv), "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for all-invalid upload, got %d", rec.Code)
		}
	})

	t.Run("MissingColumns", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/batches", "text/csv", []byte("a,b\n1,2\n"), "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing columns, got %d", rec.Code)
		}
	})
}

func TestBatchLifecycle(t *testing.T) {
	srv := newTestServer(t)
	batchID := uploadCSV(t, srv, "tenant-1", testCSV)

	t.Run("GetBatch", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/batches/"+batchID, "", nil, "tenant-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var batch domain.Batch
		decode(t, rec, &batch)
		if batch.ID != batchID || batch.Accepted != 3 {
			t.Errorf("unexpected batch: %+v", batch)
		}
	})

	t.Run("GetBatchNotFound", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/batches/missing", "", nil, "tenant-1")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("GetBatchOtherTenant", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/batches/"+batchID, "", nil, "tenant-2")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 across tenants, got %d", rec.Code)
		}
	})

	t.Run("AnalyzeBatch", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/batches/"+batchID+"/analyze", "", nil, "tenant-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var rep domain.Report
		decode(t, rec, &rep)
		if len(rep.SuspiciousAccounts) != 3 {
			t.Errorf("expected 3 flagged accounts, got %d", len(rep.SuspiciousAccounts))
		}
		if len(rep.FraudRings) != 1 || rep.FraudRings[0].RingID != "RING_001" {
			t.Errorf("unexpected rings: %+v", rep.FraudRings)
		}

		t.Run("ReportRetrievable", func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, "/reports/"+rep.ID, "", nil, "tenant-1")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
		})

		t.Run("ListReports", func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, "/reports", "", nil, "tenant-1")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var resp struct {
				Reports []domain.Report `json:"reports"`
				Count   int             `json:"count"`
			}
			decode(t, rec, &resp)
			if resp.Count != 1 || len(resp.Reports) != 1 {
				t.Errorf("expected 1 report, got %+v", resp)
			}
		})
	})

	t.Run("AnalyzeMissingBatch", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/batches/missing/analyze", "", nil, "tenant-1")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestInlineAnalyze(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Triangle", func(t *testing.T) {
		body := []byte(`{"transactions": [
			{"transaction_id": "t1", "sender_id": "A", "receiver_id": "B", "amount": 100, "timestamp": "2025-03-01T10:00:00Z"},
			{"transaction_id": "t2", "sender_id": "B", "receiver_id": "C", "amount": 100, "timestamp": "2025-03-01T11:00:00Z"},
			{"transaction_id": "t3", "sender_id": "C", "receiver_id": "A", "amount": 100, "timestamp": "2025-03-01T12:00:00Z"}
		]}`)

		rec := doRequest(t, srv, http.MethodPost, "/analyze", "application/json", body, "tenant-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var rep domain.Report
		decode(t, rec, &rep)
		if len(rep.SuspiciousAccounts) != 3 {
			t.Errorf("expected 3 flagged accounts, got %d", len(rep.SuspiciousAccounts))
		}
		for _, acc := range rep.SuspiciousAccounts {
			if acc.SuspicionScore != 30.8 {
				t.Errorf("expected score 30.8 for %s, got %v", acc.AccountID, acc.SuspicionScore)
			}
		}
	})

	t.Run("InvalidTransaction", func(t *testing.T) {
		body := []byte(`{"transactions": [
			{"transaction_id": "t1", "sender_id": "A", "receiver_id": "A", "amount": 100, "timestamp": "2025-03-01T10:00:00Z"}
		]}`)
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "application/json", body, "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for self-loop, got %d", rec.Code)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		body := []byte(`{"transactions": [
			{"transaction_id": "t1", "sender_id": "A", "receiver_id": "B", "amount": 100, "timestamp": "2025-03-01T10:00:00Z"},
			{"transaction_id": "t1", "sender_id": "B", "receiver_id": "C", "amount": 100, "timestamp": "2025-03-01T11:00:00Z"}
		]}`)
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "application/json", body, "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for duplicate id, got %d", rec.Code)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "application/json", []byte("{"), "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad JSON, got %d", rec.Code)
		}
	})
}

func TestAlertPolicyEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("GetDefault", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/policy", "", nil, "tenant-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]string
		decode(t, rec, &resp)
		if resp["expression"] != policy.DefaultExpression {
			t.Errorf("expected default expression, got %q", resp["expression"])
		}
	})

	t.Run("Update", func(t *testing.T) {
		body := []byte(`{"expression": "ringed && score >= 25.0"}`)
		rec := doRequest(t, srv, http.MethodPut, "/policy", "application/json", body, "tenant-1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodGet, "/policy", "", nil, "tenant-1")
		var resp map[string]string
		decode(t, rec, &resp)
		if resp["expression"] != "ringed && score >= 25.0" {
			t.Errorf("expected updated expression, got %q", resp["expression"])
		}
	})

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		body := []byte(`{"expression": "score >="}`)
		rec := doRequest(t, srv, http.MethodPut, "/policy", "application/json", body, "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("EmptyExpressionRejected", func(t *testing.T) {
		body := []byte(`{"expression": ""}`)
		rec := doRequest(t, srv, http.MethodPut, "/policy", "application/json", body, "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestListReportsBadLimit(t *testing.T) {
	srv := newTestServer(t)

	for _, limit := range []string{"0", "-1", "abc"} {
		rec := doRequest(t, srv, http.MethodGet, "/reports?limit="+limit, "", nil, "tenant-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, rec.Code)
		}
	}
}

func TestMultipartUpload(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	boundary := "kestrelboundary"
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Disposition: form-data; name=\"file\"; filename=\"ledger.csv\"\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/csv\r\n\r\n")
	buf.WriteString(testCSV)
	fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)

	rec := doRequest(t, srv, http.MethodPost, "/batches",
		"multipart/form-data; boundary="+boundary, buf.Bytes(), "tenant-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	decode(t, rec, &resp)
	if resp.Filename != "ledger.csv" {
		t.Errorf("expected filename ledger.csv, got %q", resp.Filename)
	}
	if resp.Accepted != 3 {
		t.Errorf("expected 3 accepted, got %d", resp.Accepted)
	}
}

func TestCachedAnalyze(t *testing.T) {
	srv := newTestServer(t)
	batchID := uploadCSV(t, srv, "tenant-1", testCSV)

	first := doRequest(t, srv, http.MethodPost, "/batches/"+batchID+"/analyze", "", nil, "tenant-1")
	second := doRequest(t, srv, http.MethodPost, "/batches/"+batchID+"/analyze", "", nil, "tenant-1")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
	}

	var rep1, rep2 domain.Report
	decode(t, first, &rep1)
	decode(t, second, &rep2)
	if rep1.ID == "" || rep1.ID != rep2.ID {
		t.Errorf("expected cached report %s, got %s", rep1.ID, rep2.ID)
	}
}
