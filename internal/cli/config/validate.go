package config

import (
	"errors"
	"fmt"
	"os"
)

var validOutputs = map[string]bool{"auto": true, "text": true, "markdown": true, "json": true}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.BudgetUSD < 0 {
		errs = append(errs, fmt.Errorf("budget_usd must not be negative, got %.2f", c.BudgetUSD))
	}
	if c.Pool.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("pool.max_conns must be at least 1, got %d", c.Pool.MaxConns))
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		errs = append(errs, fmt.Errorf("pool.min_conns must be between 0 and pool.max_conns, got %d", c.Pool.MinConns))
	}
	if c.StatementTimeout <= 0 {
		errs = append(errs, fmt.Errorf("statement_timeout must be positive, got %s", c.StatementTimeout))
	}
	if c.CancelCheckInterval < 1 {
		errs = append(errs, fmt.Errorf("cancel_check_interval must be at least 1, got %d", c.CancelCheckInterval))
	}
	if !validOutputs[c.OutputFormat] {
		errs = append(errs, fmt.Errorf("unknown output format %q (want auto, text, markdown or json)", c.OutputFormat))
	}
	return errors.Join(errs...)
}

// ValidateForRun checks the settings only a benchmark run needs.
func (c *Config) ValidateForRun() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required\nHint: set it in leapbench.yaml, LEAPBENCH_DATABASE_URL or --database-url")
	}
	if c.Predictions.Baseline == "" && c.Predictions.Enhanced == "" {
		return fmt.Errorf("no predictions configured\nHint: use --baseline-predictions or --enhanced-predictions")
	}
	if _, err := os.Stat(c.QuestionsPath); err != nil {
		return fmt.Errorf("question set not found at %s", c.QuestionsPath)
	}
	return nil
}
