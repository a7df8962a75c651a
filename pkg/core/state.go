package core

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a benchmark run.
type RunStatus string

// Run status constants.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Status reasons persisted alongside a terminal status.
const (
	ReasonCompleted        = "completed"
	ReasonBudgetExceeded   = "budget_exceeded"
	ReasonFatalError       = "fatal_error"
	ReasonUserCancelled    = "user_cancelled"
	ReasonContextCancelled = "context_cancelled"
)

// Approach is the SQL-generation strategy being benchmarked.
type Approach string

// Approach constants.
const (
	// ApproachBaseline generates SQL from the schema only.
	ApproachBaseline Approach = "baseline"
	// ApproachEnhanced generates SQL from the schema plus retrieved context.
	ApproachEnhanced Approach = "enhanced"
)

// RunType selects which approaches a run evaluates.
type RunType string

// Run type constants.
const (
	RunTypeBaseline RunType = "baseline"
	RunTypeEnhanced RunType = "enhanced"
	RunTypeBoth     RunType = "both"
)

// ParseRunType validates a run type string.
func ParseRunType(s string) (RunType, error) {
	switch rt := RunType(strings.ToLower(strings.TrimSpace(s))); rt {
	case RunTypeBaseline, RunTypeEnhanced, RunTypeBoth:
		return rt, nil
	}
	return "", fmt.Errorf("invalid run type %q (want baseline, enhanced or both)", s)
}

// Approaches returns the approaches evaluated by the run type, baseline first.
func (t RunType) Approaches() []Approach {
	switch t {
	case RunTypeBaseline:
		return []Approach{ApproachBaseline}
	case RunTypeEnhanced:
		return []Approach{ApproachEnhanced}
	case RunTypeBoth:
		return []Approach{ApproachBaseline, ApproachEnhanced}
	}
	return nil
}

// RunSpec is the information needed to create a run record.
type RunSpec struct {
	Name          string
	RunType       RunType
	QuestionCount int
	Databases     []string
	CreatedBy     string
	Notes         string
}

// Run represents one batch evaluation job.
type Run struct {
	ID              string
	Name            string
	RunType         RunType
	Databases       []string
	QuestionCount   int
	Status          RunStatus
	StatusReason    string
	LastError       string
	CompletedCount  int
	FailedCount     int
	CurrentQuestion string

	TotalCostUSD    float64
	BaselineCostUSD float64
	EnhancedCostUSD float64

	Metrics     Metrics
	TotalTimeMS int64

	CreatedBy string
	Notes     string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Progress returns the fraction of questions processed so far.
func (r *Run) Progress() float64 {
	if r.QuestionCount == 0 {
		return 0
	}
	return float64(r.CompletedCount+r.FailedCount) / float64(r.QuestionCount)
}

// Metrics holds the aggregate match rates of a run. A nil rate means the
// approach produced no outcome to rate.
type Metrics struct {
	BaselineExactMatch *float64
	BaselineExecMatch  *float64
	EnhancedExactMatch *float64
	EnhancedExecMatch  *float64
}
