// Package ingest parses and validates transaction CSV uploads before they
// reach the analytics core. The core assumes a clean list; everything
// malformed is rejected here with a per-row reason.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Required CSV columns, matched case-insensitively against the header row.
var requiredColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// timestampLayouts are tried in order. Covers ISO-8601 with and without
// fractional seconds or Z, the space-separated form, and date-only.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Result holds the outcome of parsing one CSV stream.
type Result struct {
	Transactions []domain.Transaction
	Errors       []domain.RowError
	TotalRecords int
}

// ParseCSV reads a transaction CSV and returns the valid transactions plus
// one RowError per rejected row. Row numbers are 1-based including the
// header, matching what a user sees in a spreadsheet.
func ParseCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty CSV", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable header: %v", domain.ErrInvalidInput, err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	seenIDs := make(map[string]struct{})
	rowNum := 1 // header

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		result.TotalRecords++

		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{
				RowNumber: rowNum,
				Reason:    fmt.Sprintf("malformed row: %v", err),
			})
			continue
		}

		tx, err := parseRow(row, index)
		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{
				RowNumber: rowNum,
				Reason:    err.Error(),
			})
			continue
		}

		if _, dup := seenIDs[tx.ID]; dup {
			result.Errors = append(result.Errors, domain.RowError{
				RowNumber: rowNum,
				Reason:    fmt.Sprintf("duplicate transaction_id %q", tx.ID),
			})
			continue
		}
		seenIDs[tx.ID] = struct{}{}

		result.Transactions = append(result.Transactions, tx)
	}

	slog.Info("csv parsed",
		"total", result.TotalRecords,
		"accepted", len(result.Transactions),
		"rejected", len(result.Errors),
	)

	return result, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (domain.Transaction, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	amountStr := field("amount")
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid amount %q", amountStr)
	}

	ts, err := ParseTimestamp(field("timestamp"))
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ID:         field("transaction_id"),
		SenderID:   field("sender_id"),
		ReceiverID: field("receiver_id"),
		Amount:     amount,
		Timestamp:  ts,
	}
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

// ParseTimestamp parses a transaction timestamp in any supported layout.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	// RFC 3339 first: covers arbitrary fractional-second precision and
	// numeric offsets.
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", value)
}
