// Package budget tracks spending of a run and stops it at a ceiling.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

// ErrBudgetExceeded is matched by every *ExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ExceededError reports the spend that broke the ceiling.
type ExceededError struct {
	RunID string
	Total float64
	Limit float64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for run %s: $%.4f > $%.2f", e.RunID, e.Total, e.Limit)
}

// Is makes errors.Is(err, ErrBudgetExceeded) hold.
func (e *ExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// CostSink persists incremental cost to the run record.
type CostSink interface {
	AddRunCost(ctx context.Context, runID string, approach core.Approach, amount float64) error
}

// Ledger is the in-memory running total of one run.
type Ledger struct {
	runID  string
	limit  float64
	sink   CostSink
	logger *slog.Logger

	mu    sync.Mutex
	total float64
}

// NewLedger creates a ledger for runID with a ceiling of limit dollars.
// A non-positive limit disables the ceiling.
func NewLedger(runID string, limit float64, sink CostSink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{runID: runID, limit: limit, sink: sink, logger: logger}
}

// Record adds amount to the running total. If the new total exceeds the
// ceiling it returns an *ExceededError and persists nothing; otherwise the
// increment is persisted against approach. A failed persist leaves the
// running total unchanged.
func (l *Ledger) Record(ctx context.Context, amount float64, approach core.Approach) error {
	if amount < 0 {
		return fmt.Errorf("negative cost %.4f for %s", amount, approach)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total += amount
	if l.limit > 0 && l.total > l.limit {
		l.logger.Warn("budget exceeded",
			slog.String("run_id", l.runID),
			slog.Float64("total_usd", l.total),
			slog.Float64("limit_usd", l.limit))
		return &ExceededError{RunID: l.runID, Total: l.total, Limit: l.limit}
	}

	if amount == 0 || l.sink == nil {
		return nil
	}
	if err := l.sink.AddRunCost(ctx, l.runID, approach, amount); err != nil {
		l.total -= amount
		return fmt.Errorf("failed to persist cost: %w", err)
	}
	return nil
}

// Total returns the running total.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Limit returns the ceiling.
func (l *Ledger) Limit() float64 {
	return l.limit
}

// Remaining returns what is left before the ceiling, never negative.
func (l *Ledger) Remaining() float64 {
	if l.limit <= 0 {
		return 0
	}
	return max(0, l.limit-l.Total())
}
