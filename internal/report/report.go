// Package report assembles analysis output and orchestrates the full
// detection pipeline over one immutable transaction set.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ring"
	"github.com/opensource-finance/kestrel/internal/score"
)

// Assemble packages scored accounts, rings and summary statistics into the
// external report schema. Pure aggregation: it cannot fail on well-formed
// inputs and copies its inputs rather than aliasing them.
func Assemble(records []domain.SuspicionRecord, rings []domain.FraudRing, accountCount int, elapsed time.Duration) *domain.Report {
	accounts := make([]domain.SuspicionRecord, len(records))
	copy(accounts, records)

	ringsCopy := make([]domain.FraudRing, len(rings))
	copy(ringsCopy, rings)

	return &domain.Report{
		SuspiciousAccounts: accounts,
		FraudRings:         ringsCopy,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     accountCount,
			SuspiciousAccountsFlagged: len(accounts),
			FraudRingsDetected:        len(ringsCopy),
			ProcessingTimeSeconds:     score.Round1(elapsed.Seconds()),
		},
	}
}

// Run executes the full pipeline: graph build, parallel detection, scoring,
// ring clustering and assembly. Any detector failure aborts the whole run;
// a report is never returned with a pattern kind silently missing.
func Run(ctx context.Context, txs []domain.Transaction, cfg domain.DetectorConfig) (*domain.Report, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := graph.Build(txs)
	slog.Debug("graph built",
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
	)

	hits, err := detect.Run(ctx, g, txs, cfg)
	if err != nil {
		return nil, fmt.Errorf("pattern detection failed: %w", err)
	}

	if err := verifyEvidence(g, hits); err != nil {
		return nil, err
	}

	records := score.Accounts(hits)
	rings := ring.Cluster(hits, records, cfg.RingMinScore)

	rep := Assemble(records, rings, g.NodeCount(), time.Since(start))

	slog.Info("analysis complete",
		"accounts", g.NodeCount(),
		"transactions", len(txs),
		"hits", len(hits),
		"flagged", len(records),
		"rings", len(rings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return rep, nil
}

// verifyEvidence checks that every account a detector referenced actually
// exists in the graph. A miss is a programming bug, not bad input, and must
// abort the analysis rather than silently drop data.
func verifyEvidence(g *graph.Graph, hits []domain.PatternHit) error {
	for _, hit := range hits {
		if !g.HasNode(hit.AccountID) {
			return fmt.Errorf("%w: %s hit references unknown account %s", domain.ErrInvariant, hit.Kind, hit.AccountID)
		}
		for _, account := range hit.Evidence.Path {
			if !g.HasNode(account) {
				return fmt.Errorf("%w: %s evidence path references unknown account %s", domain.ErrInvariant, hit.Kind, account)
			}
		}
		for _, account := range hit.Evidence.Counterparties {
			if !g.HasNode(account) {
				return fmt.Errorf("%w: %s evidence counterparty references unknown account %s", domain.ErrInvariant, hit.Kind, account)
			}
		}
	}
	return nil
}
