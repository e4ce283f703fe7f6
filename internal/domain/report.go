package domain

import "time"

// PatternKind identifies one of the detector outputs.
type PatternKind string

const (
	PatternCycle3       PatternKind = "cycle_length_3"
	PatternCycle4       PatternKind = "cycle_length_4"
	PatternCycle5       PatternKind = "cycle_length_5"
	PatternFanIn        PatternKind = "fan_in_pattern"
	PatternFanOut       PatternKind = "fan_out_pattern"
	PatternShellChain   PatternKind = "shell_chain_pattern"
	PatternHighVelocity PatternKind = "high_velocity"
)

// RingPatternType is the structural family a fraud ring belongs to.
// Singular per ring: union-find runs within a pattern kind, never across.
type RingPatternType string

const (
	RingTypeCycle  RingPatternType = "cycle"
	RingTypeFanIn  RingPatternType = "fan_in"
	RingTypeFanOut RingPatternType = "fan_out"
	RingTypeShell  RingPatternType = "shell"
)

// Evidence carries the structural proof behind a pattern hit. Exactly one
// of Path or Counterparties is populated depending on the pattern kind.
type Evidence struct {
	// Path is the ordered account path for cycles and shell chains.
	Path []string `json:"path,omitempty"`

	// Counterparties is the distinct counterparty set for fan patterns.
	Counterparties []string `json:"counterparties,omitempty"`

	// WindowStart/WindowEnd bound the triggering window for temporal patterns.
	WindowStart time.Time `json:"windowStart,omitempty"`
	WindowEnd   time.Time `json:"windowEnd,omitempty"`
}

// PatternHit is one detector finding attributed to a single account.
type PatternHit struct {
	AccountID string      `json:"accountId"`
	Kind      PatternKind `json:"kind"`
	Evidence  Evidence    `json:"evidence"`
}

// SuspicionRecord is the scored result for one flagged account.
type SuspicionRecord struct {
	AccountID        string        `json:"account_id"`
	RawScore         int           `json:"-"`
	SuspicionScore   float64       `json:"suspicion_score"`
	DetectedPatterns []PatternKind `json:"detected_patterns"`
	RingID           *string       `json:"ring_id"`
}

// FraudRing is a cluster of flagged accounts sharing structural evidence.
type FraudRing struct {
	RingID         string          `json:"ring_id"`
	MemberAccounts []string        `json:"member_accounts"`
	PatternType    RingPatternType `json:"pattern_type"`
	RiskScore      float64         `json:"risk_score"`
}

// Summary holds the run-level statistics for a report.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// Report is the final artifact of one analysis run. Immutable once
// assembled; the only thing the repository persists from a run.
type Report struct {
	ID                 string            `json:"report_id,omitempty"`
	TenantID           string            `json:"-"`
	BatchID            string            `json:"batch_id,omitempty"`
	SuspiciousAccounts []SuspicionRecord `json:"suspicious_accounts"`
	FraudRings         []FraudRing       `json:"fraud_rings"`
	Summary            Summary           `json:"summary"`
	CreatedAt          time.Time         `json:"created_at,omitempty"`
}
