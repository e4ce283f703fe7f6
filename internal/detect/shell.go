package detect

import (
	"context"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// ShellChainDetector finds layered paths routed through low-activity
// intermediary accounts. Entities with almost no transaction history sitting
// mid-path exist to obscure the money flow, not to transact.
type ShellChainDetector struct{}

func (ShellChainDetector) Name() string { return "shell" }

// Detect runs a bounded BFS from every node. A path extends only through
// intermediates satisfying the low-activity predicate (total transactions
// at most the configured bound) and qualifies once it reaches a non-shell
// terminal at the minimum chain length. Branches are pruned the moment a
// node fails the predicate or would be revisited, which keeps the amortized
// total near linear despite the per-source worst case.
func (ShellChainDetector) Detect(ctx context.Context, g *graph.Graph, _ []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error) {
	seen := make(map[string]struct{})
	var chains [][]string

	for _, source := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(chains) >= cfg.MaxChains {
			break
		}
		chains = bfsShellChains(g, source, cfg, seen, chains)
	}

	// Stable presentation: shorter chains first, then lexicographic.
	sort.Slice(chains, func(i, j int) bool {
		if len(chains[i]) != len(chains[j]) {
			return len(chains[i]) < len(chains[j])
		}
		return lessPath(chains[i], chains[j])
	})

	var hits []domain.PatternHit
	for _, chain := range chains {
		for _, account := range chain {
			hits = append(hits, domain.PatternHit{
				AccountID: account,
				Kind:      domain.PatternShellChain,
				Evidence:  domain.Evidence{Path: append([]string(nil), chain...)},
			})
		}
	}
	return hits, nil
}

func bfsShellChains(g *graph.Graph, source string, cfg domain.DetectorConfig, seen map[string]struct{}, chains [][]string) [][]string {
	type state struct {
		node string
		path []string
	}

	queue := []state{{node: source, path: []string{source}}}

	for len(queue) > 0 && len(chains) < cfg.MaxChains {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path) >= cfg.MaxChainLength {
			continue
		}

		for _, next := range g.Successors(cur.node) {
			if contains(cur.path, next) {
				continue
			}

			path := make([]string, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, next)

			if g.Activity(next) <= cfg.ShellMaxActivity {
				// Shell node: keep layering, never a terminal.
				queue = append(queue, state{node: next, path: path})
				continue
			}

			// Non-shell terminal closes the chain if every intermediate
			// passed the predicate and the chain is long enough.
			if len(path) >= cfg.MinChainLength && intermediatesAreShells(g, path, cfg.ShellMaxActivity) {
				key := strings.Join(path, "\x1f")
				if _, ok := seen[key]; !ok {
					seen[key] = struct{}{}
					chains = append(chains, path)
					if len(chains) >= cfg.MaxChains {
						return chains
					}
				}
			}
		}
	}

	return chains
}

func intermediatesAreShells(g *graph.Graph, path []string, maxActivity int) bool {
	for i := 1; i < len(path)-1; i++ {
		if g.Activity(path[i]) > maxActivity {
			return false
		}
	}
	return true
}

func contains(path []string, node string) bool {
	for _, p := range path {
		if p == node {
			return true
		}
	}
	return false
}
