// Package compare scores generated SQL against gold SQL.
package compare

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapbench/internal/dialect"
	"github.com/leapstack-labs/leapbench/internal/executor"
	"github.com/leapstack-labs/leapbench/internal/normalize"
)

// ErrGoldFailed marks an execution-match error caused by the gold query, a
// defect in the dataset or schema rather than in the generator.
var ErrGoldFailed = errors.New("Gold SQL failed") //nolint:staticcheck // matches the recorded error text

// QueryRunner executes one statement against one database.
type QueryRunner interface {
	Execute(ctx context.Context, query, database string) ([]executor.Row, error)
}

// Comparator computes exact and execution match.
type Comparator struct {
	runner QueryRunner
}

// New creates a Comparator that executes through runner.
func New(runner QueryRunner) *Comparator {
	return &Comparator{runner: runner}
}

// ExactMatch reports whether generated and gold SQL share a canonical form
// once gold is translated to the target dialect. It is a syntactic check only.
func ExactMatch(generated, gold string) bool {
	return normalize.SQL(generated) == normalize.SQL(dialect.Translate(gold))
}

// ExactMatch is the package-level ExactMatch.
func (c *Comparator) ExactMatch(generated, gold string) bool {
	return ExactMatch(generated, gold)
}

// ExecutionMatch executes gold and generated SQL in database and reports
// whether they return the same rows. Gold runs first; if it fails the result
// is false with an error wrapping ErrGoldFailed, whatever the generated SQL.
// A failing generated query returns false with its database error.
func (c *Comparator) ExecutionMatch(ctx context.Context, generated, gold, database string) (bool, error) {
	goldRows, err := c.runner.Execute(ctx, dialect.Translate(gold), database)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrGoldFailed, err)
	}

	genRows, err := c.runner.Execute(ctx, generated, database)
	if err != nil {
		return false, err
	}

	return executor.EqualRows(goldRows, genRows), nil
}
