package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapbench/internal/cli/output"
	"github.com/leapstack-labs/leapbench/pkg/core"
)

// RunView is the JSON form of a run.
type RunView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	RunType         string     `json:"run_type"`
	Databases       []string   `json:"databases"`
	Status          string     `json:"status"`
	StatusReason    string     `json:"status_reason,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	QuestionCount   int        `json:"question_count"`
	CompletedCount  int        `json:"completed_count"`
	FailedCount     int        `json:"failed_count"`
	CurrentQuestion string     `json:"current_question,omitempty"`
	Progress        float64    `json:"progress"`
	TotalCostUSD    float64    `json:"total_cost_usd"`
	BaselineCostUSD float64    `json:"baseline_cost_usd"`
	EnhancedCostUSD float64    `json:"enhanced_cost_usd"`
	Metrics         MetricView `json:"metrics"`
	TotalTimeMS     int64      `json:"total_time_ms"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// MetricView holds the aggregate accuracy rates of a run.
type MetricView struct {
	BaselineExactMatch *float64 `json:"baseline_exact_match"`
	BaselineExecMatch  *float64 `json:"baseline_exec_match"`
	EnhancedExactMatch *float64 `json:"enhanced_exact_match"`
	EnhancedExecMatch  *float64 `json:"enhanced_exec_match"`
}

func newRunView(r *core.Run) RunView {
	return RunView{
		ID:              r.ID,
		Name:            r.Name,
		RunType:         string(r.RunType),
		Databases:       r.Databases,
		Status:          string(r.Status),
		StatusReason:    r.StatusReason,
		LastError:       r.LastError,
		QuestionCount:   r.QuestionCount,
		CompletedCount:  r.CompletedCount,
		FailedCount:     r.FailedCount,
		CurrentQuestion: r.CurrentQuestion,
		Progress:        r.Progress(),
		TotalCostUSD:    r.TotalCostUSD,
		BaselineCostUSD: r.BaselineCostUSD,
		EnhancedCostUSD: r.EnhancedCostUSD,
		Metrics: MetricView{
			BaselineExactMatch: r.Metrics.BaselineExactMatch,
			BaselineExecMatch:  r.Metrics.BaselineExecMatch,
			EnhancedExactMatch: r.Metrics.EnhancedExactMatch,
			EnhancedExecMatch:  r.Metrics.EnhancedExecMatch,
		},
		TotalTimeMS: r.TotalTimeMS,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CancelledAt: r.CancelledAt,
	}
}

// OutcomeView is the JSON form of one approach's outcome.
type OutcomeView struct {
	SQL             string  `json:"sql"`
	ExactMatch      bool    `json:"exact_match"`
	ExecMatch       bool    `json:"exec_match"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	CostUSD         float64 `json:"cost_usd"`
	TokensUsed      int     `json:"tokens_used"`
}

// ResultView is the JSON form of a result.
type ResultView struct {
	QuestionID string       `json:"question_id"`
	Database   string       `json:"database"`
	Question   string       `json:"question"`
	GoldSQL    string       `json:"gold_sql"`
	Difficulty string       `json:"difficulty,omitempty"`
	Baseline   *OutcomeView `json:"baseline,omitempty"`
	Enhanced   *OutcomeView `json:"enhanced,omitempty"`
}

func newOutcomeView(o *core.Outcome) *OutcomeView {
	if o == nil {
		return nil
	}
	return &OutcomeView{
		SQL:             o.GeneratedSQL,
		ExactMatch:      o.ExactMatch,
		ExecMatch:       o.ExecMatch,
		Error:           o.Error,
		ExecutionTimeMS: o.ExecutionTimeMS,
		CostUSD:         o.CostUSD,
		TokensUsed:      o.TokensUsed,
	}
}

func newResultView(r *core.Result) ResultView {
	return ResultView{
		QuestionID: r.QuestionID,
		Database:   r.Database,
		Question:   r.Question,
		GoldSQL:    r.GoldSQL,
		Difficulty: r.Difficulty,
		Baseline:   newOutcomeView(r.Baseline),
		Enhanced:   newOutcomeView(r.Enhanced),
	}
}

func formatRate(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *f*100)
}

func formatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatOutcome summarises an outcome as a short cell value.
func formatOutcome(o *core.Outcome) string {
	switch {
	case o == nil:
		return "-"
	case o.Error != "":
		return "error"
	case o.ExecMatch && o.ExactMatch:
		return "exec+exact"
	case o.ExecMatch:
		return "exec"
	case o.ExactMatch:
		return "exact"
	}
	return "miss"
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// renderRun writes the detail view of a run.
func renderRun(r *output.Renderer, run *core.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(newRunView(run))
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.KeyValue("Name", run.Name)
	r.KeyValue("Type", string(run.RunType))
	r.KeyValue("Databases", strings.Join(run.Databases, ", "))
	status := r.Status(run.Status)
	if run.StatusReason != "" {
		status += r.Muted(" (" + run.StatusReason + ")")
	}
	r.KeyValue("Status", status)
	r.KeyValue("Progress", fmt.Sprintf("%d/%d completed, %d failed (%.0f%%)",
		run.CompletedCount, run.QuestionCount, run.FailedCount, run.Progress()*100))
	if run.CurrentQuestion != "" && !run.Status.IsTerminal() {
		r.KeyValue("Current question", run.CurrentQuestion)
	}
	r.KeyValue("Cost", fmt.Sprintf("%s (baseline %s, enhanced %s)",
		formatCost(run.TotalCostUSD), formatCost(run.BaselineCostUSD), formatCost(run.EnhancedCostUSD)))
	r.KeyValue("Created", formatTime(&run.CreatedAt))
	r.KeyValue("Started", formatTime(run.StartedAt))
	if run.CompletedAt != nil {
		r.KeyValue("Completed", formatTime(run.CompletedAt))
	}
	if run.CancelledAt != nil {
		r.KeyValue("Cancelled", formatTime(run.CancelledAt))
	}
	if run.LastError != "" {
		r.KeyValue("Last error", run.LastError)
	}
	if run.Status == core.RunStatusCompleted {
		r.Println()
		r.Table([]string{"Approach", "Exact match", "Execution match"}, [][]string{
			{"baseline", formatRate(run.Metrics.BaselineExactMatch), formatRate(run.Metrics.BaselineExecMatch)},
			{"enhanced", formatRate(run.Metrics.EnhancedExactMatch), formatRate(run.Metrics.EnhancedExecMatch)},
		})
	}
	return nil
}
