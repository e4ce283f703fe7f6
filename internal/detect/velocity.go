package detect

import (
	"context"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// VelocityAnalyzer flags accounts with a high total transaction count
// (incoming plus outgoing) across the dataset.
type VelocityAnalyzer struct{}

func (VelocityAnalyzer) Name() string { return "velocity" }

// Detect counts each account's total activity and emits a high_velocity hit
// when it reaches the threshold. Evidence carries the account's first and
// last transaction timestamps. O(N) over the transaction list.
func (VelocityAnalyzer) Detect(ctx context.Context, g *graph.Graph, txs []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	first := make(map[string]time.Time)
	last := make(map[string]time.Time)

	observe := func(account string, ts time.Time) {
		counts[account]++
		if f, ok := first[account]; !ok || ts.Before(f) {
			first[account] = ts
		}
		if l, ok := last[account]; !ok || ts.After(l) {
			last[account] = ts
		}
	}

	for _, tx := range txs {
		observe(tx.SenderID, tx.Timestamp)
		observe(tx.ReceiverID, tx.Timestamp)
	}

	flagged := make([]string, 0)
	for account, n := range counts {
		if n >= cfg.VelocityThreshold {
			flagged = append(flagged, account)
		}
	}
	sort.Strings(flagged)

	var hits []domain.PatternHit
	for _, account := range flagged {
		hits = append(hits, domain.PatternHit{
			AccountID: account,
			Kind:      domain.PatternHighVelocity,
			Evidence: domain.Evidence{
				WindowStart: first[account],
				WindowEnd:   last[account],
			},
		})
	}
	return hits, nil
}
