package detect

import (
	"context"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// CycleDetector finds simple directed cycles of bounded length. Money that
// returns to its origin through a short chain of accounts is the classic
// layering signature.
type CycleDetector struct{}

func (CycleDetector) Name() string { return "cycle" }

// Detect runs a depth-bounded DFS from every node. A path closes into a
// cycle when it returns to its start node with a length inside the
// configured bounds. Each cycle is canonicalized before dedup, so the same
// cycle discovered from different start nodes or in the reverse direction
// is reported exactly once.
func (CycleDetector) Detect(ctx context.Context, g *graph.Graph, _ []domain.Transaction, cfg domain.DetectorConfig) ([]domain.PatternHit, error) {
	seen := make(map[string][]string) // canonical key -> canonical path

	for _, start := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := []string{start}
		onPath := map[string]bool{start: true}
		dfsCycles(g, start, path, onPath, cfg.MinCycleLength, cfg.MaxCycleLength, seen)
	}

	cycles := make([][]string, 0, len(seen))
	for _, c := range seen {
		cycles = append(cycles, c)
	}
	// Shorter cycles first, then lexicographic, for stable output.
	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) < len(cycles[j])
		}
		return lessPath(cycles[i], cycles[j])
	})

	var hits []domain.PatternHit
	for _, cycle := range cycles {
		kind := cycleKind(len(cycle))
		for _, account := range cycle {
			hits = append(hits, domain.PatternHit{
				AccountID: account,
				Kind:      kind,
				Evidence:  domain.Evidence{Path: append([]string(nil), cycle...)},
			})
		}
	}
	return hits, nil
}

func dfsCycles(g *graph.Graph, start string, path []string, onPath map[string]bool, minLen, maxLen int, seen map[string][]string) {
	last := path[len(path)-1]

	for _, next := range g.Successors(last) {
		if next == start {
			if len(path) >= minLen {
				key, canonical := canonicalCycle(path)
				if _, ok := seen[key]; !ok {
					seen[key] = canonical
				}
			}
			continue
		}
		if onPath[next] || len(path) >= maxLen {
			continue
		}

		onPath[next] = true
		dfsCycles(g, start, append(path, next), onPath, minLen, maxLen, seen)
		delete(onPath, next)
	}
}

// canonicalCycle returns a direction-insensitive dedup key and the canonical
// representation of a cycle: the lexicographically smallest rotation, taken
// over both traversal directions so mutual reversals collapse to one form.
func canonicalCycle(cycle []string) (string, []string) {
	forward := smallestRotation(cycle)

	reversed := make([]string, len(cycle))
	for i, v := range cycle {
		reversed[len(cycle)-1-i] = v
	}
	backward := smallestRotation(reversed)

	canonical := forward
	if lessPath(backward, forward) {
		canonical = backward
	}
	return strings.Join(canonical, "\x1f"), canonical
}

func smallestRotation(cycle []string) []string {
	best := 0
	for i := 1; i < len(cycle); i++ {
		if lessRotation(cycle, i, best) {
			best = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[best:]...)
	rotated = append(rotated, cycle[:best]...)
	return rotated
}

// lessRotation compares two rotations of the same cycle element-wise
// without materializing them.
func lessRotation(cycle []string, a, b int) bool {
	n := len(cycle)
	for k := 0; k < n; k++ {
		va, vb := cycle[(a+k)%n], cycle[(b+k)%n]
		if va != vb {
			return va < vb
		}
	}
	return false
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func cycleKind(length int) domain.PatternKind {
	switch length {
	case 3:
		return domain.PatternCycle3
	case 4:
		return domain.PatternCycle4
	default:
		return domain.PatternCycle5
	}
}
