// Package config loads leapbench configuration.
//
// Values are layered, lowest to highest precedence: built-in defaults, the
// leapbench.yaml project file, LEAPBENCH_* environment variables and flags
// set explicitly on the command line.
package config

import "time"

// Default values.
const (
	DefaultStateFile           = ".leapbench/state.db"
	DefaultQuestionsPath       = "questions.yaml"
	DefaultBudgetUSD           = 5.0
	DefaultMinConns            = 2
	DefaultMaxConns            = 10
	DefaultStatementTimeout    = 5 * time.Second
	DefaultCancelCheckInterval = 10
	DefaultOutput              = "auto"
)

// PoolConfig sizes the connection pool to the benchmark database.
type PoolConfig struct {
	MinConns int32 `koanf:"min_conns"`
	MaxConns int32 `koanf:"max_conns"`
}

// PredictionsConfig points each approach at a JSONL prediction file.
type PredictionsConfig struct {
	Baseline string `koanf:"baseline"`
	Enhanced string `koanf:"enhanced"`
}

// Config holds all CLI configuration options.
type Config struct {
	DatabaseURL         string            `koanf:"database_url"`
	StatePath           string            `koanf:"state_path"`
	QuestionsPath       string            `koanf:"questions_path"`
	BudgetUSD           float64           `koanf:"budget_usd"`
	Pool                PoolConfig        `koanf:"pool"`
	StatementTimeout    time.Duration     `koanf:"statement_timeout"`
	CancelCheckInterval int               `koanf:"cancel_check_interval"`
	Predictions         PredictionsConfig `koanf:"predictions"`
	Verbose             bool              `koanf:"verbose"`
	OutputFormat        string            `koanf:"output"`
}
