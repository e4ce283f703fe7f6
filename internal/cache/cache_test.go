package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)

		if err := c.Set(ctx, "tenant-1", "key", []byte("value"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		got, err := c.Get(ctx, "tenant-1", "key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "value" {
			t.Errorf("expected value, got %q", got)
		}
	})

	t.Run("MissReturnsNilNil", func(t *testing.T) {
		c := NewLRUCache(10)

		got, err := c.Get(ctx, "tenant-1", "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil on miss, got %q", got)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, "tenant-1", "key", []byte("one"), time.Minute)
		c.Set(ctx, "tenant-2", "key", []byte("two"), time.Minute)

		got, _ := c.Get(ctx, "tenant-1", "key")
		if string(got) != "one" {
			t.Errorf("expected one, got %q", got)
		}
		got, _ = c.Get(ctx, "tenant-2", "key")
		if string(got) != "two" {
			t.Errorf("expected two, got %q", got)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, "tenant-1", "key", []byte("value"), time.Nanosecond)
		time.Sleep(10 * time.Millisecond)

		got, err := c.Get(ctx, "tenant-1", "key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected expired entry to miss, got %q", got)
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		c := NewLRUCache(2)

		c.Set(ctx, "tenant-1", "a", []byte("1"), time.Minute)
		c.Set(ctx, "tenant-1", "b", []byte("2"), time.Minute)
		c.Get(ctx, "tenant-1", "a") // a becomes most recently used
		c.Set(ctx, "tenant-1", "c", []byte("3"), time.Minute)

		if got, _ := c.Get(ctx, "tenant-1", "b"); got != nil {
			t.Errorf("expected b evicted, got %q", got)
		}
		if got, _ := c.Get(ctx, "tenant-1", "a"); string(got) != "1" {
			t.Errorf("expected a retained, got %q", got)
		}

		size, capacity := c.Stats()
		if size != 2 || capacity != 2 {
			t.Errorf("expected size 2 of 2, got %d of %d", size, capacity)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, "tenant-1", "key", []byte("value"), time.Minute)
		if err := c.Delete(ctx, "tenant-1", "key"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := c.Get(ctx, "tenant-1", "key"); got != nil {
			t.Errorf("expected deleted entry to miss, got %q", got)
		}
	})

	t.Run("EmptyTenantRejected", func(t *testing.T) {
		c := NewLRUCache(10)

		if _, err := c.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenant on Get")
		}
		if err := c.Set(ctx, "", "key", nil, time.Minute); err == nil {
			t.Error("expected error for empty tenant on Set")
		}
	})
}

func TestReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	ringID := "RING_001"
	report := &domain.Report{
		ID:      "report-1",
		BatchID: "batch-1",
		SuspiciousAccounts: []domain.SuspicionRecord{
			{
				AccountID:        "A",
				SuspicionScore:   30.8,
				DetectedPatterns: []domain.PatternKind{domain.PatternCycle3},
				RingID:           &ringID,
			},
		},
		FraudRings: []domain.FraudRing{
			{RingID: ringID, MemberAccounts: []string{"A", "B"}, PatternType: domain.RingTypeCycle, RiskScore: 30.8},
		},
	}

	if err := c.SetReport(ctx, "tenant-1", "batch-1", report, time.Minute); err != nil {
		t.Fatalf("SetReport failed: %v", err)
	}

	got, err := c.GetReport(ctx, "tenant-1", "batch-1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached report, got nil")
	}
	if got.ID != "report-1" || len(got.SuspiciousAccounts) != 1 {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.SuspiciousAccounts[0].RingID == nil || *got.SuspiciousAccounts[0].RingID != ringID {
		t.Errorf("ring id lost in round trip: %v", got.SuspiciousAccounts[0].RingID)
	}

	// Miss on a different batch.
	miss, err := c.GetReport(ctx, "tenant-1", "batch-2")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if miss != nil {
		t.Errorf("expected nil on miss, got %+v", miss)
	}
}

func TestNew(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
