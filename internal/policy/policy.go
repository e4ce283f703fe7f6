// Package policy provides the CEL-based alert policy evaluated against
// scored accounts after an analysis run.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultExpression alerts on any account scoring 80 or above.
const DefaultExpression = "score >= 80.0"

// Alert is one policy match: an account whose record satisfied the
// configured expression.
type Alert struct {
	AccountID      string              `json:"account_id"`
	SuspicionScore float64             `json:"suspicion_score"`
	Patterns       []domain.PatternKind `json:"patterns"`
	RingID         *string             `json:"ring_id"`
	Expression     string              `json:"expression"`
}

// Engine compiles an alert expression once and evaluates it per account.
// Safe for concurrent use; reload takes a write lock.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	expression string
	program    cel.Program
}

// NewEngine compiles the given expression. An empty expression falls back to
// DefaultExpression.
func NewEngine(expression string) (*Engine, error) {
	if expression == "" {
		expression = DefaultExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
		cel.Variable("pattern_count", cel.IntType),
		cel.Variable("ringed", cel.BoolType),
		cel.Variable("ring_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	if err := e.Reload(expression); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload swaps in a new expression. The old program keeps serving until the
// new one compiles.
func (e *Engine) Reload(expression string) error {
	program, err := e.compile(expression)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.expression = expression
	e.program = program
	e.mu.Unlock()
	return nil
}

// Expression returns the currently loaded expression.
func (e *Engine) Expression() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expression
}

// Evaluate runs the policy over every scored account and returns alerts in
// record order.
func (e *Engine) Evaluate(records []domain.SuspicionRecord) ([]Alert, error) {
	e.mu.RLock()
	expression, program := e.expression, e.program
	e.mu.RUnlock()

	var alerts []Alert
	for i := range records {
		rec := &records[i]

		patterns := make([]string, len(rec.DetectedPatterns))
		for j, p := range rec.DetectedPatterns {
			patterns[j] = string(p)
		}
		ringID := ""
		if rec.RingID != nil {
			ringID = *rec.RingID
		}

		out, _, err := program.Eval(map[string]any{
			"account_id":    rec.AccountID,
			"score":         rec.SuspicionScore,
			"patterns":      patterns,
			"pattern_count": int64(len(patterns)),
			"ringed":        rec.RingID != nil,
			"ring_id":       ringID,
		})
		if err != nil {
			return nil, fmt.Errorf("alert policy evaluation failed for %s: %w", rec.AccountID, err)
		}

		if toBool(out) {
			alerts = append(alerts, Alert{
				AccountID:      rec.AccountID,
				SuspicionScore: rec.SuspicionScore,
				Patterns:       rec.DetectedPatterns,
				RingID:         rec.RingID,
				Expression:     expression,
			})
		}
	}
	return alerts, nil
}

func (e *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: alert policy %q: %v", domain.ErrInvalidConfig, expression, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: alert policy must return bool, got %s", domain.ErrInvalidConfig, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: alert policy %q: %v", domain.ErrInvalidConfig, expression, err)
	}
	return program, nil
}

func toBool(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}
