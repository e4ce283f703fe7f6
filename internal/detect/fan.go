package detect

import (
	"context"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// FanPatternDetector flags aggregation (fan-in) and distribution (fan-out)
// hubs: accounts dealing with many distinct counterparties inside a short
// time window.
type FanPatternDetector struct{}

func (FanPatternDetector) Name() string { return "fan" }

// Detect slides a two-pointer window over each account's incoming and
// outgoing edges (pre-sorted by timestamp in the graph). A window whose
// span fits the configured duration and holds at least the threshold of
// distinct counterparties triggers a hit on the hub. O(N) amortized per
// account; an edge is never re-scanned once it leaves the window.
func (FanPatternDetector) Detect(ctx context.Context, g *graph.Graph, _ []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error) {
	var hits []domain.PatternHit

	for _, account := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ev, ok := scanFanWindow(g.InEdges(account), incomingCounterparty, cfg); ok {
			hits = append(hits, domain.PatternHit{
				AccountID: account,
				Kind:      domain.PatternFanIn,
				Evidence:  ev,
			})
		}
		if ev, ok := scanFanWindow(g.OutEdges(account), outgoingCounterparty, cfg); ok {
			hits = append(hits, domain.PatternHit{
				AccountID: account,
				Kind:      domain.PatternFanOut,
				Evidence:  ev,
			})
		}
	}

	return hits, nil
}

func incomingCounterparty(e graph.Edge) string { return e.From }
func outgoingCounterparty(e graph.Edge) string { return e.To }

// scanFanWindow reports the first window meeting the distinct-counterparty
// threshold. Presence is binary per account and direction, so the first
// qualifying window is the whole evidence.
func scanFanWindow(edges []graph.Edge, counterparty func(graph.Edge) string, cfg domain.DetectorConfig) (domain.Evidence, bool) {
	if len(edges) < cfg.FanThreshold {
		return domain.Evidence{}, false
	}

	counts := make(map[string]int)
	distinct := 0
	left := 0

	for right := 0; right < len(edges); right++ {
		id := counterparty(edges[right])
		if counts[id] == 0 {
			distinct++
		}
		counts[id]++

		// Shrink until the window span fits.
		for edges[right].Timestamp.Sub(edges[left].Timestamp) > cfg.FanWindow {
			leftID := counterparty(edges[left])
			counts[leftID]--
			if counts[leftID] == 0 {
				distinct--
			}
			left++
		}

		if distinct >= cfg.FanThreshold {
			parties := make([]string, 0, distinct)
			for id, n := range counts {
				if n > 0 {
					parties = append(parties, id)
				}
			}
			sort.Strings(parties)

			return domain.Evidence{
				Counterparties: parties,
				WindowStart:    edges[left].Timestamp,
				WindowEnd:      edges[right].Timestamp,
			}, true
		}
	}

	return domain.Evidence{}, false
}
