// Package executor runs single read-only statements against one schema of a
// shared PostgreSQL service.
//
// Every call borrows a pooled connection, opens a read-only transaction with
// a server-side statement timeout, points search_path at the target schema,
// reads all rows and rolls back. The connection is returned on every path.
// Connection-level failures are retried; statement errors are not.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/leapstack-labs/leapbench/internal/retry"
)

// DefaultTimeout bounds every statement on the server.
const DefaultTimeout = 5 * time.Second

const setSearchPath = "SELECT set_config('search_path', $1, true)"

// Executor executes queries through a shared *sql.DB.
type Executor struct {
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
	policy  retry.Policy
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout sets the per-statement timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetryPolicy replaces the retry policy for operational errors.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Executor) {
		e.policy = p
	}
}

// New creates an Executor over db, which should be sized as the pool.
func New(db *sql.DB, opts ...Option) *Executor {
	e := &Executor{
		db:      db,
		logger:  slog.New(slog.DiscardHandler),
		timeout: DefaultTimeout,
		policy:  retry.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs query in database and returns its rows sorted by their string
// form. Operational failures are retried per the policy; when they persist,
// or when the statement itself fails, the database error is returned.
func (e *Executor) Execute(ctx context.Context, query, database string) ([]Row, error) {
	attempt := 0
	rows, err := retry.Value(ctx, e.policy, IsOperational, func(ctx context.Context) ([]Row, error) {
		attempt++
		rows, err := e.execute(ctx, query, database)
		if err != nil && IsOperational(err) {
			e.logger.Warn("operational error, retrying",
				slog.String("database", database),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return rows, err
	})
	if err != nil {
		e.logger.Debug("query failed", slog.String("database", database), slog.String("error", err.Error()))
		return nil, err
	}
	return rows, nil
}

func (e *Executor) execute(ctx context.Context, query, database string) ([]Row, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", e.timeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}
	if _, err := tx.ExecContext(ctx, setSearchPath, pgx.Identifier{database}.Sanitize()); err != nil {
		return nil, fmt.Errorf("failed to set search path: %w", err)
	}

	start := time.Now()
	rs, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()

	out, err := scanRows(rs)
	if err != nil {
		return nil, err
	}
	SortRows(out)

	e.logger.Debug("query executed",
		slog.String("database", database),
		slog.Int("rows", len(out)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}
