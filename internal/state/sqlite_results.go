package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

const resultColumns = `id, run_id, question_id, db_name, question, gold_sql, difficulty,
	baseline_sql, baseline_exact_match, baseline_exec_match, baseline_error,
	baseline_execution_time_ms, baseline_cost_usd, baseline_tokens, baseline_retry_count,
	enhanced_sql, enhanced_exact_match, enhanced_exec_match, enhanced_error,
	enhanced_execution_time_ms, enhanced_cost_usd, enhanced_tokens, enhanced_retry_count,
	processed_at`

// SaveResult appends a result and sets its ID.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *core.Result) error {
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = s.now()
	}

	args := []any{r.RunID, r.QuestionID, r.Database, r.Question, r.GoldSQL, nullString(r.Difficulty)}
	args = append(args, outcomeArgs(r.Baseline)...)
	args = append(args, outcomeArgs(r.Enhanced)...)
	args = append(args, formatTime(r.ProcessedAt))

	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO results (run_id, question_id, db_name, question, gold_sql, difficulty,
				baseline_sql, baseline_exact_match, baseline_exec_match, baseline_error,
				baseline_execution_time_ms, baseline_cost_usd, baseline_tokens, baseline_retry_count,
				enhanced_sql, enhanced_exact_match, enhanced_exec_match, enhanced_error,
				enhanced_execution_time_ms, enhanced_cost_usd, enhanced_tokens, enhanced_retry_count,
				processed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		)
		if err != nil {
			return err
		}
		r.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	s.logger.Debug("result saved",
		slog.String("run_id", r.RunID),
		slog.String("question_id", r.QuestionID))
	return nil
}

// ListResults returns every result of a run in insertion order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*core.Result, error) {
	results, _, err := s.QueryResults(ctx, runID, ResultFilter{})
	return results, err
}

// QueryResults returns a page of results and the number matching the filter.
func (s *SQLiteStore) QueryResults(ctx context.Context, runID string, filter ResultFilter) ([]*core.Result, int, error) {
	where := []string{"run_id = ?"}
	args := []any{runID}
	if filter.Database != "" {
		where = append(where, "db_name = ?")
		args = append(args, filter.Database)
	}
	if filter.FailuresOnly {
		where = append(where, "(baseline_exec_match = 0 OR enhanced_exec_match = 0)")
	}
	cond := strings.Join(where, " AND ")

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	var results []*core.Result
	var total int
	err := s.do(ctx, func(ctx context.Context) error {
		results = nil
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE `+cond, args...).Scan(&total); err != nil {
			return err
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+resultColumns+` FROM results WHERE `+cond+` ORDER BY id LIMIT ? OFFSET ?`,
			append(args, limit, max(filter.Offset, 0))...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			r, err := scanResult(rows)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query results: %w", err)
	}
	return results, total, nil
}

// AggregateByDatabase counts results and execution matches per database.
func (s *SQLiteStore) AggregateByDatabase(ctx context.Context, runID string) ([]core.DatabaseStats, error) {
	var stats []core.DatabaseStats
	err := s.do(ctx, func(ctx context.Context) error {
		stats = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT db_name, COUNT(*),
				COALESCE(SUM(baseline_exec_match), 0),
				COALESCE(SUM(enhanced_exec_match), 0)
			 FROM results WHERE run_id = ?
			 GROUP BY db_name ORDER BY db_name`, runID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var st core.DatabaseStats
			if err := rows.Scan(&st.Database, &st.Total, &st.BaselineCorrect, &st.EnhancedCorrect); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate results: %w", err)
	}
	return stats, nil
}

// outcomeArgs flattens an outcome into its eight columns; a nil outcome
// stores NULLs, which is how an unevaluated approach is told apart.
func outcomeArgs(o *core.Outcome) []any {
	if o == nil {
		return make([]any, 8)
	}
	return []any{
		o.GeneratedSQL, o.ExactMatch, o.ExecMatch, nullString(o.Error),
		o.ExecutionTimeMS, o.CostUSD, o.TokensUsed, o.RetryCount,
	}
}

type outcomeColumns struct {
	sql        sql.NullString
	exactMatch sql.NullBool
	execMatch  sql.NullBool
	errMsg     sql.NullString
	timeMS     sql.NullInt64
	cost       sql.NullFloat64
	tokens     sql.NullInt64
	retries    sql.NullInt64
}

func (c *outcomeColumns) dest() []any {
	return []any{&c.sql, &c.exactMatch, &c.execMatch, &c.errMsg, &c.timeMS, &c.cost, &c.tokens, &c.retries}
}

func (c *outcomeColumns) outcome() *core.Outcome {
	if !c.exactMatch.Valid {
		return nil
	}
	return &core.Outcome{
		GeneratedSQL:    c.sql.String,
		ExactMatch:      c.exactMatch.Bool,
		ExecMatch:       c.execMatch.Bool,
		Error:           c.errMsg.String,
		ExecutionTimeMS: c.timeMS.Int64,
		CostUSD:         c.cost.Float64,
		TokensUsed:      int(c.tokens.Int64),
		RetryCount:      int(c.retries.Int64),
	}
}

func scanResult(row scanner) (*core.Result, error) {
	var r core.Result
	var difficulty, processedAt sql.NullString
	var baseline, enhanced outcomeColumns

	dest := []any{&r.ID, &r.RunID, &r.QuestionID, &r.Database, &r.Question, &r.GoldSQL, &difficulty}
	dest = append(dest, baseline.dest()...)
	dest = append(dest, enhanced.dest()...)
	dest = append(dest, &processedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	r.Difficulty = difficulty.String
	r.Baseline = baseline.outcome()
	r.Enhanced = enhanced.outcome()

	processed, err := parseTime(processedAt)
	if err != nil {
		return nil, err
	}
	if processed != nil {
		r.ProcessedAt = *processed
	}
	return &r, nil
}
