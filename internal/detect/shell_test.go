package detect

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// busy generates enough unrelated traffic to push an account's activity
// above the shell bound.
func busy(account string, n int, start time.Time) []domain.Transaction {
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, tx(
			account+"-noise-"+string(rune('a'+i)),
			account,
			"EXT_"+account,
			start.Add(time.Duration(i)*time.Minute),
		))
	}
	return txs
}

func TestShellChainDetector(t *testing.T) {
	ctx := context.Background()
	cfg := domain.DefaultDetectorConfig() // max activity 3, chain 3..6 nodes

	t.Run("ChainThroughQuietIntermediates", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "SRC", "SH_A", testBase),
			tx("t2", "SH_A", "SH_B", testBase.Add(time.Hour)),
			tx("t3", "SH_B", "SINK", testBase.Add(2*time.Hour)),
		}
		// SINK must be a non-shell terminal.
		txs = append(txs, busy("SINK", 4, testBase.Add(3*time.Hour))...)
		g := graph.Build(txs)

		hits, err := ShellChainDetector{}.Detect(ctx, g, txs, cfg)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}

		// The full chain and its qualifying suffix are both reported.
		want := []string{"SRC", "SH_A", "SH_B", "SINK"}
		members := make(map[string]bool)
		foundFull := false
		for _, h := range hits {
			if h.Kind != domain.PatternShellChain {
				t.Errorf("expected kind %s, got %s", domain.PatternShellChain, h.Kind)
			}
			if reflect.DeepEqual(h.Evidence.Path, want) {
				foundFull = true
			}
			members[h.AccountID] = true
		}
		if !foundFull {
			t.Errorf("expected chain %v among hits", want)
		}
		for _, m := range want {
			if !members[m] {
				t.Errorf("expected member %s to be flagged", m)
			}
		}
	})

	t.Run("ShellTerminalNotAChain", func(t *testing.T) {
		// Every account is quiet, so no non-shell terminal exists.
		txs := []domain.Transaction{
			tx("t1", "SRC", "SH_A", testBase),
			tx("t2", "SH_A", "SH_B", testBase.Add(time.Hour)),
			tx("t3", "SH_B", "SINK", testBase.Add(2*time.Hour)),
		}
		g := graph.Build(txs)

		hits, err := ShellChainDetector{}.Detect(ctx, g, txs, cfg)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expected no hits without a non-shell terminal, got %d", len(hits))
		}
	})

	t.Run("BusyIntermediateBreaksChain", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("t1", "SRC", "MID", testBase),
			tx("t2", "MID", "SINK", testBase.Add(time.Hour)),
		}
		txs = append(txs, busy("MID", 4, testBase.Add(2*time.Hour))...)
		txs = append(txs, busy("SINK", 4, testBase.Add(3*time.Hour))...)
		g := graph.Build(txs)

		hits, err := ShellChainDetector{}.Detect(ctx, g, txs, cfg)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		for _, h := range hits {
			if contains(h.Evidence.Path, "MID") {
				t.Errorf("chain %v routed through high-activity intermediate", h.Evidence.Path)
			}
		}
	})

	t.Run("TooShortChainIgnored", func(t *testing.T) {
		// Two-node path SRC -> SINK is below the minimum chain length.
		txs := []domain.Transaction{
			tx("t1", "SRC", "SINK", testBase),
		}
		txs = append(txs, busy("SINK", 4, testBase.Add(time.Hour))...)
		g := graph.Build(txs)

		hits, err := ShellChainDetector{}.Detect(ctx, g, txs, cfg)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expected no hits for a 2-node path, got %d", len(hits))
		}
	})

	t.Run("ChainCapRespected", func(t *testing.T) {
		small := cfg
		small.MaxChains = 1

		txs := []domain.Transaction{
			tx("t1", "S1", "M1", testBase),
			tx("t2", "M1", "SINK", testBase.Add(time.Hour)),
			tx("t3", "S2", "M2", testBase),
			tx("t4", "M2", "SINK", testBase.Add(time.Hour)),
		}
		txs = append(txs, busy("SINK", 4, testBase.Add(2*time.Hour))...)
		g := graph.Build(txs)

		hits, err := ShellChainDetector{}.Detect(ctx, g, txs, small)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}

		chains := make(map[string]bool)
		for _, h := range hits {
			chains[h.Evidence.Path[0]] = true
		}
		if len(chains) != 1 {
			t.Errorf("expected exactly 1 chain under cap, got %d", len(chains))
		}
	})
}
