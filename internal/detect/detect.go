// Package detect implements the four fraud pattern detectors. Each detector
// is an independent read-only pass over the transaction graph; they share no
// state and run in parallel within a single analysis.
package detect

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Detector is the uniform contract all pattern detectors implement.
// Implementations must not mutate the graph or the transaction list.
type Detector interface {
	// Name identifies the detector in logs and failure reports.
	Name() string

	// Detect scans the graph (and raw transactions, for temporal patterns)
	// and returns one PatternHit per account per pattern instance found.
	Detect(ctx context.Context, g *graph.Graph, txs []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error)
}

// All returns the standard detector set in fixed order. The order fixes the
// concatenation order of hits, which keeps full-pipeline output stable.
func All() []Detector {
	return []Detector{
		CycleDetector{},
		FanPatternDetector{},
		ShellChainDetector{},
		VelocityAnalyzer{},
	}
}

// Run executes all detectors in parallel over the shared read-only graph
// and merges their hits in detector order. A failure in any detector aborts
// the whole run; no partial hit set is ever returned.
func Run(ctx context.Context, g *graph.Graph, txs []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	detectors := All()
	results := make([][]domain.PatternHit, len(detectors))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		eg.Go(func() error {
			start := time.Now()
			hits, err := d.Detect(egCtx, g, txs, cfg)
			if err != nil {
				return err
			}
			results[i] = hits
			slog.Debug("detector finished",
				"detector", d.Name(),
				"hits", len(hits),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.PatternHit
	for _, hits := range results {
		merged = append(merged, hits...)
	}
	return merged, nil
}
