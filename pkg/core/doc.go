// Package core defines the shared language of the leapbench system.
//
// This package contains:
//   - Benchmark entities (Question, Run, Result, Outcome)
//   - Status, run type and approach enumerations
//   - Aggregate metrics attached to a finished run
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
