// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain error taxonomy. Ingestion rejects bad input before the analytics
// core runs; config errors fail fast at load; invariant errors abort an
// analysis run entirely.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid config")
	ErrInvariant     = errors.New("internal invariant violated")
	ErrNotFound      = errors.New("record not found")
)

// Transaction is a single validated ledger entry. Immutable once ingested.
// Self-loops (sender == receiver) and non-positive amounts are rejected at
// the ingestion boundary; the analytics core assumes a clean list.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the core invariants on a single transaction.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidInput)
	}
	if t.SenderID == "" || t.ReceiverID == "" {
		return fmt.Errorf("%w: sender_id and receiver_id are required", ErrInvalidInput)
	}
	if t.SenderID == t.ReceiverID {
		return fmt.Errorf("%w: self-loop transaction %s", ErrInvalidInput, t.ID)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidInput, t.Amount)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	return nil
}

// Batch is a stored transaction set awaiting or following analysis.
type Batch struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Filename     string    `json:"filename,omitempty"`
	TotalRecords int       `json:"totalRecords"`
	Accepted     int       `json:"accepted"`
	Rejected     int       `json:"rejected"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RowError describes a single rejected CSV row.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
}
