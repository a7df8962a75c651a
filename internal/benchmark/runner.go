// Package benchmark drives benchmark runs: it walks the question set,
// generates SQL per approach, scores it and persists progress, results and
// the final run state.
//
// A run moves pending → running → completed | failed | cancelled. Question
// failures are counted and skipped. An exceeded budget, an unexpected store
// failure or a panic in a collaborator aborts the run with status failed;
// the terminal state is persisted before the error reaches the caller.
// Cancellation is requested out of band by flagging the stored run and is
// noticed at the next poll, at most CancelCheckInterval questions later. A
// terminal status is never overwritten.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/leapstack-labs/leapbench/internal/budget"
	"github.com/leapstack-labs/leapbench/internal/compare"
	"github.com/leapstack-labs/leapbench/internal/generator"
	"github.com/leapstack-labs/leapbench/internal/questions"
	"github.com/leapstack-labs/leapbench/internal/state"
	"github.com/leapstack-labs/leapbench/pkg/core"
	"golang.org/x/sync/errgroup"
)

// DefaultCancelCheckInterval is how many questions pass between status polls.
const DefaultCancelCheckInterval = 10

// Store is the part of the state store a run needs.
type Store interface {
	CreateRun(ctx context.Context, spec core.RunSpec) (*core.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status core.RunStatus, reason, errMsg string) error
	UpdateRunProgress(ctx context.Context, runID string, p state.Progress) error
	AddRunCost(ctx context.Context, runID string, approach core.Approach, amount float64) error
	SaveResult(ctx context.Context, result *core.Result) error
	GetRunStatus(ctx context.Context, runID string) (core.RunStatus, error)
	ListResults(ctx context.Context, runID string) ([]*core.Result, error)
	SaveMetrics(ctx context.Context, runID string, m core.Metrics, totalTimeMS int64) error
}

// QuestionSource yields the filtered question set of a run.
type QuestionSource interface {
	Questions(filter questions.Filter) ([]core.Question, error)
}

// Matcher scores generated SQL against gold SQL.
type Matcher interface {
	ExactMatch(generated, gold string) bool
	ExecutionMatch(ctx context.Context, generated, gold, database string) (bool, error)
}

// RunConfig describes one run.
type RunConfig struct {
	Name      string
	RunType   core.RunType
	Databases []string
	Limit     int
	CreatedBy string
	Notes     string
}

// Options tune a Runner.
type Options struct {
	// BudgetUSD is the spending ceiling of each run; zero disables it.
	BudgetUSD           float64
	CancelCheckInterval int
	Logger              *slog.Logger
}

type generatorKey struct {
	approach core.Approach
	database string
}

// Runner executes runs. It is safe for concurrent use; each run gets its own
// budget ledger while the generator cache and the store are shared.
type Runner struct {
	store       Store
	source      QuestionSource
	factory     generator.Factory
	matcher     Matcher
	budgetUSD   float64
	cancelEvery int
	logger      *slog.Logger

	mu         sync.Mutex
	generators map[generatorKey]generator.Generator
}

// New creates a Runner.
func New(store Store, source QuestionSource, factory generator.Factory, matcher Matcher, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CancelCheckInterval <= 0 {
		opts.CancelCheckInterval = DefaultCancelCheckInterval
	}
	return &Runner{
		store:       store,
		source:      source,
		factory:     factory,
		matcher:     matcher,
		budgetUSD:   opts.BudgetUSD,
		cancelEvery: opts.CancelCheckInterval,
		logger:      opts.Logger,
		generators:  make(map[generatorKey]generator.Generator),
	}
}

// generator returns the cached generator for approach and database,
// building it on first use.
func (r *Runner) generator(approach core.Approach, database string) (generator.Generator, error) {
	key := generatorKey{approach: approach, database: database}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.generators[key]; ok {
		return g, nil
	}
	g, err := r.factory.Generator(database, approach)
	if err != nil {
		return nil, err
	}
	r.generators[key] = g
	return g, nil
}

// progress is the counter state of one run.
type progress struct {
	completed int
	failed    int
}

func (p progress) snapshot(current string) state.Progress {
	return state.Progress{Completed: p.completed, Failed: p.failed, CurrentQuestion: current}
}

// Run executes cfg synchronously and returns the run ID. It returns nil when
// the run completes or is cancelled through the store. When the run fails or
// ctx ends, the terminal state is persisted and the cause is returned along
// with the ID.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (runID string, err error) {
	approaches := cfg.RunType.Approaches()
	if len(approaches) == 0 {
		return "", fmt.Errorf("invalid run type %q", cfg.RunType)
	}

	qs, err := r.source.Questions(questions.Filter{Databases: cfg.Databases, Limit: cfg.Limit})
	if err != nil {
		return "", fmt.Errorf("failed to load questions: %w", err)
	}

	notes := cfg.Notes
	if notes == "" && r.budgetUSD > 0 {
		notes = fmt.Sprintf("Budget limit: $%.2f", r.budgetUSD)
	}
	run, err := r.store.CreateRun(ctx, core.RunSpec{
		Name:          cfg.Name,
		RunType:       cfg.RunType,
		QuestionCount: len(qs),
		Databases:     cfg.Databases,
		CreatedBy:     cfg.CreatedBy,
		Notes:         notes,
	})
	if err != nil {
		return "", err
	}
	logger := r.logger.With("run_id", run.ID)

	if err := r.store.UpdateRunStatus(ctx, run.ID, core.RunStatusRunning, "", ""); err != nil {
		if errors.Is(err, state.ErrRunFinished) {
			logger.Info("run cancelled before start")
			return run.ID, nil
		}
		return run.ID, err
	}
	logger.Info("starting run", "name", cfg.Name, "run_type", cfg.RunType, "questions", len(qs))

	ledger := budget.NewLedger(run.ID, r.budgetUSD, r.store, logger)
	start := time.Now()
	var p progress

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("run panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			runID = run.ID
			err = r.abort(ctx, run.ID, p, core.RunStatusFailed, core.ReasonFatalError, fmt.Errorf("panic: %v", rec))
		}
	}()

	for i, q := range qs {
		if i%r.cancelEvery == 0 {
			status, err := r.store.GetRunStatus(ctx, run.ID)
			if err != nil {
				if ctx.Err() != nil {
					return run.ID, r.abort(ctx, run.ID, p, core.RunStatusCancelled, core.ReasonContextCancelled, ctx.Err())
				}
				return run.ID, r.abort(ctx, run.ID, p, core.RunStatusFailed, core.ReasonFatalError, err)
			}
			if status == core.RunStatusCancelled {
				logger.Info("run cancelled", "at_question", i, "completed", p.completed, "failed", p.failed)
				return run.ID, r.flush(ctx, run.ID, p)
			}
		}
		if err := ctx.Err(); err != nil {
			return run.ID, r.abort(ctx, run.ID, p, core.RunStatusCancelled, core.ReasonContextCancelled, err)
		}

		if err := r.store.UpdateRunProgress(ctx, run.ID, p.snapshot(q.Text)); err != nil {
			return run.ID, r.abort(ctx, run.ID, p, core.RunStatusFailed, core.ReasonFatalError, err)
		}

		err := r.processQuestion(ctx, run.ID, q, approaches, ledger)
		switch {
		case err == nil:
			p.completed++
		case errors.Is(err, budget.ErrBudgetExceeded):
			return run.ID, r.abort(ctx, run.ID, p, core.RunStatusFailed, core.ReasonBudgetExceeded, err)
		case ctx.Err() != nil:
			return run.ID, r.abort(ctx, run.ID, p, core.RunStatusCancelled, core.ReasonContextCancelled, ctx.Err())
		default:
			p.failed++
			logger.Warn("question failed", "question_id", q.ID, "error", err.Error())
		}
	}

	if err := r.complete(ctx, run.ID, p, time.Since(start)); err != nil {
		if errors.Is(err, state.ErrRunFinished) {
			logger.Info("run ended before completion", "completed", p.completed, "failed", p.failed, "error", err.Error())
			return run.ID, r.flush(ctx, run.ID, p)
		}
		return run.ID, r.abort(ctx, run.ID, p, core.RunStatusFailed, core.ReasonFatalError, err)
	}
	logger.Info("run completed",
		"completed", p.completed,
		"failed", p.failed,
		"cost_usd", ledger.Total(),
		"duration", time.Since(start))
	return run.ID, nil
}

// RunMany executes configs concurrently, at most parallel at a time, and
// returns their run IDs in order. One run failing does not stop the others;
// their errors are joined.
func (r *Runner) RunMany(ctx context.Context, configs []RunConfig, parallel int) ([]string, error) {
	ids := make([]string, len(configs))
	errs := make([]error, len(configs))

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, cfg := range configs {
		g.Go(func() error {
			id, err := r.Run(ctx, cfg)
			ids[i] = id
			if err != nil {
				errs[i] = fmt.Errorf("run %q: %w", cfg.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ids, errors.Join(errs...)
}

// complete stores metrics and marks the run completed. It returns
// state.ErrRunFinished, leaving the stored status alone, when the run was
// cancelled in the meantime.
func (r *Runner) complete(ctx context.Context, runID string, p progress, elapsed time.Duration) error {
	results, err := r.store.ListResults(ctx, runID)
	if err != nil {
		return err
	}
	if err := r.store.SaveMetrics(ctx, runID, ComputeMetrics(results), elapsed.Milliseconds()); err != nil {
		return err
	}
	if err := r.store.UpdateRunStatus(ctx, runID, core.RunStatusCompleted, core.ReasonCompleted, ""); err != nil {
		return err
	}
	return r.store.UpdateRunProgress(ctx, runID, p.snapshot(""))
}

// flush writes the final progress counters with the current question cleared.
func (r *Runner) flush(ctx context.Context, runID string, p progress) error {
	return r.store.UpdateRunProgress(context.WithoutCancel(ctx), runID, p.snapshot(""))
}

// abort persists a terminal status and returns cause. Persistence uses a
// context that outlives ctx so that a cancelled caller still leaves a
// terminal run behind. A run that is already terminal keeps its status.
func (r *Runner) abort(ctx context.Context, runID string, p progress, status core.RunStatus, reason string, cause error) error {
	persist := context.WithoutCancel(ctx)
	statusErr := r.store.UpdateRunStatus(persist, runID, status, reason, cause.Error())
	if errors.Is(statusErr, state.ErrRunFinished) {
		r.logger.Info("run already finished, keeping stored status", "run_id", runID, "error", statusErr.Error())
		statusErr = nil
	}
	err := errors.Join(statusErr, r.flush(ctx, runID, p))
	if err != nil {
		r.logger.Error("failed to persist run state", "run_id", runID, "status", status, "error", err.Error())
	}
	r.logger.Warn("run stopped", "run_id", runID, "status", status, "reason", reason, "error", cause.Error())
	return cause
}

// processQuestion evaluates every approach for q and appends one result.
// Budget and context errors are returned before anything is saved.
func (r *Runner) processQuestion(ctx context.Context, runID string, q core.Question, approaches []core.Approach, ledger *budget.Ledger) error {
	result := &core.Result{
		RunID:      runID,
		QuestionID: q.ID,
		Database:   q.Database,
		Question:   q.Text,
		GoldSQL:    q.GoldSQL,
		Difficulty: q.Difficulty,
	}
	for _, a := range approaches {
		o, err := r.evaluate(ctx, q, a, ledger)
		if err != nil {
			return err
		}
		result.SetOutcome(a, o)
	}
	result.ProcessedAt = time.Now().UTC()
	return r.store.SaveResult(ctx, result)
}

// evaluate generates and scores SQL for one approach. Generator failures
// become a zero-cost failed outcome; only budget, context and cost
// persistence errors are returned.
func (r *Runner) evaluate(ctx context.Context, q core.Question, a core.Approach, ledger *budget.Ledger) (*core.Outcome, error) {
	start := time.Now()
	failed := func(err error) *core.Outcome {
		return &core.Outcome{Error: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
	}

	gen, err := r.generator(a, q.Database)
	if err != nil {
		return failed(err), nil
	}
	resp, err := gen.Generate(ctx, q.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("generation failed", "question_id", q.ID, "approach", a, "error", err.Error())
		return failed(err), nil
	}

	if err := ledger.Record(ctx, resp.CostUSD, a); err != nil {
		return nil, err
	}

	o := &core.Outcome{
		GeneratedSQL: resp.SQL,
		CostUSD:      resp.CostUSD,
		TokensUsed:   resp.TokensUsed,
		ExactMatch:   r.matcher.ExactMatch(resp.SQL, q.GoldSQL),
	}
	o.ExecMatch, err = r.matcher.ExecutionMatch(ctx, resp.SQL, q.GoldSQL, q.Database)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.Error = err.Error()
		if errors.Is(err, compare.ErrGoldFailed) {
			r.logger.Warn("gold SQL failed", "question_id", q.ID, "database", q.Database, "error", err.Error())
		}
	}
	o.ExecutionTimeMS = time.Since(start).Milliseconds()
	return o, nil
}
