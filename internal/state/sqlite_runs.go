package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

const runColumns = `id, name, run_type, databases, question_count, status, status_reason, last_error,
	completed_count, failed_count, current_question,
	total_cost_usd, baseline_cost_usd, enhanced_cost_usd,
	baseline_exact_match, baseline_exec_match, enhanced_exact_match, enhanced_exec_match,
	total_time_ms, created_by, notes, created_at, started_at, completed_at, cancelled_at`

// costColumns maps an approach to its per-approach cost column.
var costColumns = map[core.Approach]string{
	core.ApproachBaseline: "baseline_cost_usd",
	core.ApproachEnhanced: "enhanced_cost_usd",
}

// CreateRun inserts a pending run.
func (s *SQLiteStore) CreateRun(ctx context.Context, spec core.RunSpec) (*core.Run, error) {
	if _, err := core.ParseRunType(string(spec.RunType)); err != nil {
		return nil, err
	}
	databases := spec.Databases
	if databases == nil {
		databases = []string{}
	}
	dbJSON, err := json.Marshal(databases)
	if err != nil {
		return nil, fmt.Errorf("failed to encode databases: %w", err)
	}

	run := &core.Run{
		ID:            generateID(),
		Name:          spec.Name,
		RunType:       spec.RunType,
		Databases:     databases,
		QuestionCount: spec.QuestionCount,
		Status:        core.RunStatusPending,
		CreatedBy:     spec.CreatedBy,
		Notes:         spec.Notes,
		CreatedAt:     s.now(),
	}

	s.logger.Debug("creating run", slog.String("run_id", run.ID), slog.String("name", run.Name))

	err = s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, name, run_type, databases, question_count, status, created_by, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Name, string(run.RunType), string(dbJSON), run.QuestionCount, string(run.Status),
			nullString(run.CreatedBy), nullString(run.Notes), formatTime(run.CreatedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus sets the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status core.RunStatus, reason, errMsg string) error {
	now := formatTime(s.now())
	var startedAt, completedAt, cancelledAt sql.NullString
	switch status {
	case core.RunStatusRunning:
		startedAt = nullString(now)
	case core.RunStatusCompleted, core.RunStatusFailed:
		completedAt = nullString(now)
	case core.RunStatusCancelled:
		cancelledAt = nullString(now)
	}

	var changed bool
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET
				status = ?,
				status_reason = COALESCE(?, status_reason),
				last_error = COALESCE(?, last_error),
				started_at = COALESCE(started_at, ?),
				completed_at = COALESCE(?, completed_at),
				cancelled_at = COALESCE(?, cancelled_at)
			 WHERE id = ? AND status NOT IN (?, ?, ?)`,
			string(status), nullString(reason), nullString(errMsg),
			startedAt, completedAt, cancelledAt, runID,
			string(core.RunStatusCompleted), string(core.RunStatusFailed), string(core.RunStatusCancelled),
		)
		if err != nil {
			return err
		}
		changed, err = rowChanged(res)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if !changed {
		return s.finished(ctx, runID)
	}

	s.logger.Debug("run status updated",
		slog.String("run_id", runID),
		slog.String("status", string(status)),
		slog.String("reason", reason))
	return nil
}

// CancelRun flags a pending or running run as cancelled by the user.
func (s *SQLiteStore) CancelRun(ctx context.Context, runID string) (bool, error) {
	var cancelled bool
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, status_reason = ?, cancelled_at = ?
			 WHERE id = ? AND status IN (?, ?)`,
			string(core.RunStatusCancelled), core.ReasonUserCancelled, formatTime(s.now()),
			runID, string(core.RunStatusPending), string(core.RunStatusRunning),
		)
		if err != nil {
			return err
		}
		cancelled, err = rowChanged(res)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel run: %w", err)
	}
	if !cancelled {
		// Distinguish an unknown run from one that already finished.
		if _, err := s.GetRunStatus(ctx, runID); err != nil {
			return false, err
		}
	}
	return cancelled, nil
}

// UpdateRunProgress writes the progress counters and the current question.
func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, runID string, p Progress) error {
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET completed_count = ?, failed_count = ?, current_question = ? WHERE id = ?`,
			p.Completed, p.Failed, nullString(p.CurrentQuestion), runID,
		)
		if err != nil {
			return err
		}
		return requireRow(res, runID)
	})
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// AddRunCost increments the total and per-approach cost of a run.
func (s *SQLiteStore) AddRunCost(ctx context.Context, runID string, approach core.Approach, amount float64) error {
	col, ok := costColumns[approach]
	if !ok {
		return fmt.Errorf("unknown approach %q", approach)
	}
	if amount < 0 {
		return fmt.Errorf("negative cost %.4f", amount)
	}

	query := fmt.Sprintf(
		`UPDATE runs SET total_cost_usd = total_cost_usd + ?, %[1]s = %[1]s + ? WHERE id = ?`, col)
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query, amount, amount, runID)
		if err != nil {
			return err
		}
		return requireRow(res, runID)
	})
	if err != nil {
		return fmt.Errorf("failed to add run cost: %w", err)
	}
	return nil
}

// SaveMetrics stores the aggregate match rates and total duration.
func (s *SQLiteStore) SaveMetrics(ctx context.Context, runID string, m core.Metrics, totalTimeMS int64) error {
	var changed bool
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET
				baseline_exact_match = ?, baseline_exec_match = ?,
				enhanced_exact_match = ?, enhanced_exec_match = ?,
				total_time_ms = ?
			 WHERE id = ? AND status NOT IN (?, ?, ?)`,
			nullFloat(m.BaselineExactMatch), nullFloat(m.BaselineExecMatch),
			nullFloat(m.EnhancedExactMatch), nullFloat(m.EnhancedExecMatch),
			totalTimeMS, runID,
			string(core.RunStatusCompleted), string(core.RunStatusFailed), string(core.RunStatusCancelled),
		)
		if err != nil {
			return err
		}
		changed, err = rowChanged(res)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}
	if !changed {
		return s.finished(ctx, runID)
	}
	return nil
}

// finished explains why a guarded update matched no row: the run is either
// unknown or already terminal.
func (s *SQLiteStore) finished(ctx context.Context, runID string) error {
	status, err := s.GetRunStatus(ctx, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrRunFinished, runID, status)
}

// GetRunStatus reads only the status; it is polled for cancellation.
func (s *SQLiteStore) GetRunStatus(ctx context.Context, runID string) (core.RunStatus, error) {
	var status string
	err := s.do(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&status)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get run status: %w", err)
	}
	return core.RunStatus(status), nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run *core.Run
	err := s.do(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
		var err error
		run, err = scanRun(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = -1
	}

	var runs []*core.Run
	err := s.do(ctx, func(ctx context.Context) error {
		runs = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and, by cascade, its results.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
		if err != nil {
			return err
		}
		return requireRow(res, runID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	s.logger.Debug("run deleted", slog.String("run_id", runID))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	var run core.Run
	var runType, status, databases string
	var reason, lastErr, current, createdBy, notes sql.NullString
	var bExact, bExec, eExact, eExec sql.NullFloat64
	var totalTime sql.NullInt64
	var createdAt, startedAt, completedAt, cancelledAt sql.NullString

	err := row.Scan(
		&run.ID, &run.Name, &runType, &databases, &run.QuestionCount, &status, &reason, &lastErr,
		&run.CompletedCount, &run.FailedCount, &current,
		&run.TotalCostUSD, &run.BaselineCostUSD, &run.EnhancedCostUSD,
		&bExact, &bExec, &eExact, &eExec,
		&totalTime, &createdBy, &notes, &createdAt, &startedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	run.RunType = core.RunType(runType)
	run.Status = core.RunStatus(status)
	run.StatusReason = reason.String
	run.LastError = lastErr.String
	run.CurrentQuestion = current.String
	run.CreatedBy = createdBy.String
	run.Notes = notes.String
	run.TotalTimeMS = totalTime.Int64
	run.Metrics = core.Metrics{
		BaselineExactMatch: floatPtr(bExact),
		BaselineExecMatch:  floatPtr(bExec),
		EnhancedExactMatch: floatPtr(eExact),
		EnhancedExecMatch:  floatPtr(eExec),
	}

	if err := json.Unmarshal([]byte(databases), &run.Databases); err != nil {
		return nil, fmt.Errorf("invalid databases for run %s: %w", run.ID, err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		run.CreatedAt = *created
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	if run.CancelledAt, err = parseTime(cancelledAt); err != nil {
		return nil, err
	}
	return &run, nil
}
