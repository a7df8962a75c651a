package core

import "time"

// Outcome is the evaluation of one approach for one question.
type Outcome struct {
	GeneratedSQL    string
	ExactMatch      bool
	ExecMatch       bool
	Error           string
	ExecutionTimeMS int64
	CostUSD         float64
	TokensUsed      int
	RetryCount      int
}

// Failed reports whether the outcome carries an error.
func (o *Outcome) Failed() bool {
	return o != nil && o.Error != ""
}

// Result is the append-only record of one question within a run.
// Outcomes are nil for approaches the run did not evaluate.
type Result struct {
	ID          int64
	RunID       string
	QuestionID  string
	Database    string
	Question    string
	GoldSQL     string
	Difficulty  string
	Baseline    *Outcome
	Enhanced    *Outcome
	ProcessedAt time.Time
}

// Outcome returns the outcome recorded for an approach.
func (r *Result) Outcome(a Approach) *Outcome {
	switch a {
	case ApproachBaseline:
		return r.Baseline
	case ApproachEnhanced:
		return r.Enhanced
	}
	return nil
}

// SetOutcome stores the outcome for an approach.
func (r *Result) SetOutcome(a Approach, o *Outcome) {
	switch a {
	case ApproachBaseline:
		r.Baseline = o
	case ApproachEnhanced:
		r.Enhanced = o
	}
}

// DatabaseStats aggregates results for one database.
type DatabaseStats struct {
	Database        string
	Total           int
	BaselineCorrect int
	EnhancedCorrect int
}

// BaselineAccuracy returns the baseline execution-match accuracy.
func (s DatabaseStats) BaselineAccuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.BaselineCorrect) / float64(s.Total)
}

// EnhancedAccuracy returns the enhanced execution-match accuracy.
func (s DatabaseStats) EnhancedAccuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.EnhancedCorrect) / float64(s.Total)
}
