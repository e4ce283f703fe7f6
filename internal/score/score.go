// Package score merges detector hits into normalized per-account suspicion
// records.
package score

import (
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Pattern weights in points. A weight applies once per pattern kind per
// account regardless of how many instances were found: binary presence, not
// multiplicity, so ten cycles through one account score the same as one.
const (
	WeightCycle        = 40
	WeightFanIn        = 30
	WeightFanOut       = 30
	WeightShellChain   = 20
	WeightHighVelocity = 10

	// MaxRawScore is the sum of all weights: 40+30+30+20+10.
	MaxRawScore = 130
)

func weight(kind domain.PatternKind) int {
	switch kind {
	case domain.PatternCycle3, domain.PatternCycle4, domain.PatternCycle5:
		return WeightCycle
	case domain.PatternFanIn:
		return WeightFanIn
	case domain.PatternFanOut:
		return WeightFanOut
	case domain.PatternShellChain:
		return WeightShellChain
	case domain.PatternHighVelocity:
		return WeightHighVelocity
	default:
		return 0
	}
}

// weightBucket collapses the three cycle kinds into one weight bucket so an
// account inside both a 3-cycle and a 4-cycle still earns the cycle weight
// exactly once.
func weightBucket(kind domain.PatternKind) string {
	switch kind {
	case domain.PatternCycle3, domain.PatternCycle4, domain.PatternCycle5:
		return "cycle"
	default:
		return string(kind)
	}
}

// Accounts aggregates pattern hits into one SuspicionRecord per account with
// at least one hit. Records are sorted by suspicion score descending, ties
// broken by account id ascending, so presentation order is deterministic.
func Accounts(hits []domain.PatternHit) []domain.SuspicionRecord {
	kinds := make(map[string]map[domain.PatternKind]struct{})
	buckets := make(map[string]map[string]int)

	for _, hit := range hits {
		if kinds[hit.AccountID] == nil {
			kinds[hit.AccountID] = make(map[domain.PatternKind]struct{})
			buckets[hit.AccountID] = make(map[string]int)
		}
		kinds[hit.AccountID][hit.Kind] = struct{}{}
		buckets[hit.AccountID][weightBucket(hit.Kind)] = weight(hit.Kind)
	}

	records := make([]domain.SuspicionRecord, 0, len(kinds))
	for account, present := range kinds {
		raw := 0
		for _, w := range buckets[account] {
			raw += w
		}
		if raw == 0 {
			continue
		}

		patterns := make([]domain.PatternKind, 0, len(present))
		for kind := range present {
			patterns = append(patterns, kind)
		}
		sort.Slice(patterns, func(i, j int) bool { return patterns[i] < patterns[j] })

		records = append(records, domain.SuspicionRecord{
			AccountID:        account,
			RawScore:         raw,
			SuspicionScore:   Normalize(raw),
			DetectedPatterns: patterns,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SuspicionScore != records[j].SuspicionScore {
			return records[i].SuspicionScore > records[j].SuspicionScore
		}
		return records[i].AccountID < records[j].AccountID
	})

	return records
}

// Normalize maps a raw score in [0, 130] to [0, 100] with one decimal:
// min(100, round(raw/130*100, 1)). Ordering is preserved.
func Normalize(raw int) float64 {
	if raw <= 0 {
		return 0
	}
	normalized := Round1(float64(raw) / MaxRawScore * 100)
	return math.Min(100, normalized)
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
