package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig sizes the process-wide connection pool.
type PoolConfig struct {
	URL      string
	MinConns int32
	MaxConns int32
}

// DefaultPoolConfig keeps two connections warm and never opens more than ten.
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{URL: url, MinConns: 2, MaxConns: 10}
}

// Pool is a pgx connection pool exposed through database/sql.
type Pool struct {
	DB   *sql.DB
	pool *pgxpool.Pool
}

// OpenPool connects to PostgreSQL and verifies the connection.
func OpenPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("invalid pool size: min %d, max %d", cfg.MinConns, cfg.MaxConns)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pcfg.MinConns = cfg.MinConns
	pcfg.MaxConns = cfg.MaxConns

	logger.Debug("opening connection pool",
		slog.String("host", pcfg.ConnConfig.Host),
		slog.Int("min_conns", int(cfg.MinConns)),
		slog.Int("max_conns", int(cfg.MaxConns)))

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MaxConns))

	return &Pool{DB: db, pool: pool}, nil
}

// Close releases every connection.
func (p *Pool) Close() error {
	err := p.DB.Close()
	p.pool.Close()
	return err
}
