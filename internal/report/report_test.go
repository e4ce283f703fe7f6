package report

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func tx(id, from, to string, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Amount:     100,
		Timestamp:  at,
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	cfg := domain.DefaultDetectorConfig()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("TriangleEndToEnd", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "A", "B", base),
			tx("t2", "B", "C", base.Add(time.Hour)),
			tx("t3", "C", "A", base.Add(2*time.Hour)),
		}

		rep, err := Run(ctx, txs, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(rep.SuspiciousAccounts) != 3 {
			t.Fatalf("expected 3 flagged accounts, got %d", len(rep.SuspiciousAccounts))
		}
		for _, acc := range rep.SuspiciousAccounts {
			if acc.SuspicionScore != 30.8 {
				t.Errorf("expected score 30.8 for %s, got %v", acc.AccountID, acc.SuspicionScore)
			}
			if acc.RingID == nil || *acc.RingID != "RING_001" {
				t.Errorf("expected RING_001 on %s, got %v", acc.AccountID, acc.RingID)
			}
		}

		if len(rep.FraudRings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(rep.FraudRings))
		}
		r := rep.FraudRings[0]
		if !reflect.DeepEqual(r.MemberAccounts, []string{"A", "B", "C"}) {
			t.Errorf("expected members [A B C], got %v", r.MemberAccounts)
		}
		if r.RiskScore != 30.8 {
			t.Errorf("expected risk 30.8, got %v", r.RiskScore)
		}

		s := rep.Summary
		if s.TotalAccountsAnalyzed != 3 || s.SuspiciousAccountsFlagged != 3 || s.FraudRingsDetected != 1 {
			t.Errorf("unexpected summary: %+v", s)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "A", "B", base),
			tx("t2", "B", "C", base.Add(time.Hour)),
			tx("t3", "C", "A", base.Add(2*time.Hour)),
			tx("t4", "C", "D", base.Add(3*time.Hour)),
		}
		reversed := make([]domain.Transaction, len(txs))
		for i, transaction := range txs {
			reversed[len(txs)-1-i] = transaction
		}

		rep1, err := Run(ctx, txs, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		rep2, err := Run(ctx, reversed, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		// Processing time varies between runs; everything else must not.
		rep1.Summary.ProcessingTimeSeconds = 0
		rep2.Summary.ProcessingTimeSeconds = 0

		b1, _ := json.Marshal(rep1)
		b2, _ := json.Marshal(rep2)
		if string(b1) != string(b2) {
			t.Errorf("reports differ across input orders:\n%s\n%s", b1, b2)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		rep, err := Run(ctx, nil, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(rep.SuspiciousAccounts) != 0 || len(rep.FraudRings) != 0 {
			t.Errorf("expected empty report, got %d accounts, %d rings", len(rep.SuspiciousAccounts), len(rep.FraudRings))
		}
		if rep.Summary.TotalAccountsAnalyzed != 0 {
			t.Errorf("expected 0 accounts analyzed, got %d", rep.Summary.TotalAccountsAnalyzed)
		}
	})

	t.Run("CleanLedgerFlagsNothing", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "A", "B", base),
			tx("t2", "C", "D", base.Add(time.Hour)),
		}
		rep, err := Run(ctx, txs, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(rep.SuspiciousAccounts) != 0 {
			t.Errorf("expected no flagged accounts, got %d", len(rep.SuspiciousAccounts))
		}
		if rep.Summary.TotalAccountsAnalyzed != 4 {
			t.Errorf("expected 4 accounts analyzed, got %d", rep.Summary.TotalAccountsAnalyzed)
		}
	})

	t.Run("InvalidConfigRejected", func(t *testing.T) {
		bad := cfg
		bad.MinCycleLength = 0
		_, err := Run(ctx, nil, bad)
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		txs := []domain.Transaction{
			tx("t1", "A", "B", base),
		}
		if _, err := Run(cancelled, txs, cfg); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestAssemble(t *testing.T) {
	records := []domain.SuspicionRecord{{AccountID: "A", SuspicionScore: 50}}
	rings := []domain.FraudRing{{RingID: "RING_001"}}

	rep := Assemble(records, rings, 10, 1500*time.Millisecond)

	if rep.Summary.TotalAccountsAnalyzed != 10 {
		t.Errorf("expected 10 accounts analyzed, got %d", rep.Summary.TotalAccountsAnalyzed)
	}
	if rep.Summary.ProcessingTimeSeconds != 1.5 {
		t.Errorf("expected 1.5s processing time, got %v", rep.Summary.ProcessingTimeSeconds)
	}

	// Mutating the report must not touch the caller's slices.
	rep.SuspiciousAccounts[0].AccountID = "changed"
	if records[0].AccountID != "A" {
		t.Error("report aliases the input records slice")
	}
}
