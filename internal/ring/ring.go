// Package ring clusters flagged accounts into fraud rings based on shared
// structural evidence.
package ring

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/score"
)

// MinMembers is the smallest group that can become a ring.
const MinMembers = 2

// Cluster groups suspicion records into fraud rings. Accounts that co-appear
// in the same cycle, share a fan hub with its counterparty set, or sit on the
// same shell chain belong to one evidence group. Overlapping groups are
// merged with union-find within each pattern kind — never across kinds, so
// unrelated structures are not conflated into one ring.
//
// A group becomes a ring only when it has at least two flagged members and
// the mean normalized score of those members reaches minScore. Ring ids are
// assigned sequentially in canonical group order (ascending smallest member
// id, ties by pattern type string), which makes assignment deterministic for
// a fixed input. Records belonging to a ring get their RingID set in place.
func Cluster(hits []domain.PatternHit, records []domain.SuspicionRecord, minScore float64) []domain.FraudRing {
	flagged := make(map[string]*domain.SuspicionRecord, len(records))
	for i := range records {
		flagged[records[i].AccountID] = &records[i]
	}

	groups := collectGroups(hits, flagged)

	// Canonical ordering before id assignment.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].members[0] != groups[j].members[0] {
			return groups[i].members[0] < groups[j].members[0]
		}
		return groups[i].patternType < groups[j].patternType
	})

	var rings []domain.FraudRing
	for _, grp := range groups {
		if len(grp.members) < MinMembers {
			continue
		}

		sum := 0.0
		for _, member := range grp.members {
			sum += flagged[member].SuspicionScore
		}
		risk := score.Round1(sum / float64(len(grp.members)))
		if risk < minScore {
			continue
		}

		ringID := fmt.Sprintf("RING_%03d", len(rings)+1)
		for _, member := range grp.members {
			id := ringID
			flagged[member].RingID = &id
		}

		rings = append(rings, domain.FraudRing{
			RingID:         ringID,
			MemberAccounts: grp.members,
			PatternType:    grp.patternType,
			RiskScore:      risk,
		})
	}

	return rings
}

type evidenceGroup struct {
	patternType domain.RingPatternType
	members     []string // sorted, flagged accounts only
}

// collectGroups derives merged evidence groups per pattern kind. Only
// accounts that carry a SuspicionRecord participate: an unflagged
// counterparty of a fan hub has no score to contribute to a ring.
func collectGroups(hits []domain.PatternHit, flagged map[string]*domain.SuspicionRecord) []evidenceGroup {
	sets := map[domain.RingPatternType]*unionFind{
		domain.RingTypeCycle:  newUnionFind(),
		domain.RingTypeFanIn:  newUnionFind(),
		domain.RingTypeFanOut: newUnionFind(),
		domain.RingTypeShell:  newUnionFind(),
	}

	for _, hit := range hits {
		ringType, members := evidenceMembers(hit)
		if ringType == "" {
			continue
		}

		var present []string
		for _, m := range members {
			if _, ok := flagged[m]; ok {
				present = append(present, m)
			}
		}
		if len(present) < MinMembers {
			continue
		}

		uf := sets[ringType]
		uf.find(present[0])
		for i := 1; i < len(present); i++ {
			uf.union(present[0], present[i])
		}
	}

	var groups []evidenceGroup
	for _, ringType := range []domain.RingPatternType{
		domain.RingTypeCycle,
		domain.RingTypeFanIn,
		domain.RingTypeFanOut,
		domain.RingTypeShell,
	} {
		for _, members := range sets[ringType].components() {
			groups = append(groups, evidenceGroup{patternType: ringType, members: members})
		}
	}
	return groups
}

// evidenceMembers extracts the co-occurring account set from a hit's
// structural evidence.
func evidenceMembers(hit domain.PatternHit) (domain.RingPatternType, []string) {
	switch hit.Kind {
	case domain.PatternCycle3, domain.PatternCycle4, domain.PatternCycle5:
		return domain.RingTypeCycle, hit.Evidence.Path
	case domain.PatternFanIn:
		return domain.RingTypeFanIn, append([]string{hit.AccountID}, hit.Evidence.Counterparties...)
	case domain.PatternFanOut:
		return domain.RingTypeFanOut, append([]string{hit.AccountID}, hit.Evidence.Counterparties...)
	case domain.PatternShellChain:
		return domain.RingTypeShell, hit.Evidence.Path
	default:
		// Velocity is a per-account signal with no co-occurrence structure.
		return "", nil
	}
}

// unionFind is a path-compressing disjoint set over account ids.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller root wins so component roots are stable across input orders.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// components returns each disjoint set as a sorted member slice, ordered by
// their smallest member.
func (u *unionFind) components() [][]string {
	byRoot := make(map[string][]string)
	for x := range u.parent {
		root := u.find(x)
		byRoot[root] = append(byRoot[root], x)
	}

	roots := make([]string, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	out := make([][]string, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.Strings(members)
		out = append(out, members)
	}
	return out
}
