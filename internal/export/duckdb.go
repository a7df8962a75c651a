// Package export writes benchmark runs to DuckDB files for offline analysis.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapbench/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id                   VARCHAR NOT NULL,
	name                 VARCHAR,
	run_type             VARCHAR,
	status               VARCHAR,
	status_reason        VARCHAR,
	question_count       INTEGER,
	completed_count      INTEGER,
	failed_count         INTEGER,
	total_cost_usd       DOUBLE,
	baseline_cost_usd    DOUBLE,
	enhanced_cost_usd    DOUBLE,
	baseline_exact_match DOUBLE,
	baseline_exec_match  DOUBLE,
	enhanced_exact_match DOUBLE,
	enhanced_exec_match  DOUBLE,
	total_time_ms        BIGINT,
	created_at           TIMESTAMP,
	completed_at         TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS results (
	run_id            VARCHAR,
	question_id       VARCHAR,
	database_name     VARCHAR,
	question          VARCHAR,
	gold_sql          VARCHAR,
	difficulty        VARCHAR,
	approach          VARCHAR,
	generated_sql     VARCHAR,
	exact_match       BOOLEAN,
	exec_match        BOOLEAN,
	error_message     VARCHAR,
	execution_time_ms BIGINT,
	cost_usd          DOUBLE,
	tokens_used       INTEGER,
	retry_count       INTEGER,
	processed_at      TIMESTAMP
)`}

// ToDuckDB writes run and its results into the DuckDB database at path,
// creating it if needed. Results are flattened to one row per outcome.
// Exporting a run again replaces its earlier rows.
func ToDuckDB(ctx context.Context, path string, run *core.Run, results []*core.Result) (err error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create export schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"results WHERE run_id = ?", "runs WHERE id = ?"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table, run.ID); err != nil {
			return fmt.Errorf("failed to clear previous export: %w", err)
		}
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	if err := insertResults(ctx, tx, results); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run *core.Run) error {
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, string(run.RunType), string(run.Status), run.StatusReason,
		run.QuestionCount, run.CompletedCount, run.FailedCount,
		run.TotalCostUSD, run.BaselineCostUSD, run.EnhancedCostUSD,
		rate(run.Metrics.BaselineExactMatch), rate(run.Metrics.BaselineExecMatch),
		rate(run.Metrics.EnhancedExactMatch), rate(run.Metrics.EnhancedExecMatch),
		run.TotalTimeMS, run.CreatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to export run: %w", err)
	}
	return nil
}

func insertResults(ctx context.Context, tx *sql.Tx, results []*core.Result) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result export: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		for _, a := range []core.Approach{core.ApproachBaseline, core.ApproachEnhanced} {
			o := r.Outcome(a)
			if o == nil {
				continue
			}
			_, err := stmt.ExecContext(ctx,
				r.RunID, r.QuestionID, r.Database, r.Question, r.GoldSQL, r.Difficulty,
				string(a), o.GeneratedSQL, o.ExactMatch, o.ExecMatch, o.Error,
				o.ExecutionTimeMS, o.CostUSD, o.TokensUsed, o.RetryCount, r.ProcessedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to export result %s/%s: %w", r.QuestionID, a, err)
			}
		}
	}
	return nil
}

func rate(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
