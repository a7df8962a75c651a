// Package generator defines the SQL generator the benchmark scores and a
// replay implementation that serves pre-computed predictions.
package generator

import (
	"context"

	"github.com/leapstack-labs/leapbench/pkg/core"
)

// Response is one generated statement and what it cost.
type Response struct {
	SQL        string  `json:"sql"`
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// Generator turns a natural-language question into SQL for one database.
// Implementations should bound their own calls; the benchmark only passes ctx.
type Generator interface {
	Generate(ctx context.Context, question string) (*Response, error)
}

// Factory builds the generator for a database and approach.
type Factory interface {
	Generator(database string, approach core.Approach) (Generator, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(database string, approach core.Approach) (Generator, error)

// Generator calls f.
func (f FactoryFunc) Generator(database string, approach core.Approach) (Generator, error) {
	return f(database, approach)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, question string) (*Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, question string) (*Response, error) {
	return f(ctx, question)
}
