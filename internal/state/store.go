// Package state persists benchmark runs and their per-question results.
//
// Runs are mutated only by the orchestrator executing them, except for the
// out-of-band cancellation flag. Results are append-only and are deleted
// only together with their run.
package state

import (
	"context"
	"errors"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

// ErrRunNotFound is returned when an operation names an unknown run.
var ErrRunNotFound = errors.New("run not found")

// ErrRunFinished is returned when a status change or metrics write targets a
// run that already reached a terminal status.
var ErrRunFinished = errors.New("run already finished")

// Progress is the counter snapshot written before each question.
type Progress struct {
	Completed       int
	Failed          int
	CurrentQuestion string
}

// ResultFilter narrows QueryResults.
type ResultFilter struct {
	Database string
	// FailuresOnly keeps results where an evaluated approach missed execution match.
	FailuresOnly bool
	Limit        int
	Offset       int
}

// Store is the persistence contract of the benchmark system.
type Store interface {
	CreateRun(ctx context.Context, spec core.RunSpec) (*core.Run, error)
	// UpdateRunStatus sets the status and stamps started_at, completed_at or
	// cancelled_at accordingly. Empty reason or errMsg keep the stored value.
	// A terminal run is left untouched and ErrRunFinished is returned.
	UpdateRunStatus(ctx context.Context, runID string, status core.RunStatus, reason, errMsg string) error
	UpdateRunProgress(ctx context.Context, runID string, p Progress) error
	AddRunCost(ctx context.Context, runID string, approach core.Approach, amount float64) error
	SaveResult(ctx context.Context, result *core.Result) error
	GetRunStatus(ctx context.Context, runID string) (core.RunStatus, error)
	ListResults(ctx context.Context, runID string) ([]*core.Result, error)
	SaveMetrics(ctx context.Context, runID string, m core.Metrics, totalTimeMS int64) error

	// CancelRun flags a pending or running run as cancelled. It reports
	// false when the run already reached a terminal status.
	CancelRun(ctx context.Context, runID string) (bool, error)
	GetRun(ctx context.Context, runID string) (*core.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*core.Run, error)
	QueryResults(ctx context.Context, runID string, filter ResultFilter) ([]*core.Result, int, error)
	AggregateByDatabase(ctx context.Context, runID string) ([]core.DatabaseStats, error)
	DeleteRun(ctx context.Context, runID string) error

	Close() error
}
