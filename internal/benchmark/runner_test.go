package benchmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/leapbench/internal/budget"
	"github.com/leapstack-labs/leapbench/internal/compare"
	"github.com/leapstack-labs/leapbench/internal/executor"
	"github.com/leapstack-labs/leapbench/internal/generator"
	"github.com/leapstack-labs/leapbench/internal/questions"
	"github.com/leapstack-labs/leapbench/internal/state"
	"github.com/leapstack-labs/leapbench/internal/testutil"
	"github.com/leapstack-labs/leapbench/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSource serves a fixed question set.
type staticSource []core.Question

func (s staticSource) Questions(filter questions.Filter) ([]core.Question, error) {
	return filter.Apply(s), nil
}

func makeQuestions(n int, database string) staticSource {
	qs := make(staticSource, n)
	for i := range qs {
		qs[i] = core.Question{
			ID:       fmt.Sprintf("dev_%04d", i),
			Database: database,
			Text:     fmt.Sprintf("q%d", i),
			GoldSQL:  fmt.Sprintf("SELECT g%d", i),
		}
	}
	return qs
}

// concat joins question sets and renumbers their IDs.
func concat(sets ...staticSource) staticSource {
	var out staticSource
	for _, set := range sets {
		out = append(out, set...)
	}
	for i := range out {
		out[i].ID = fmt.Sprintf("dev_%04d", i)
	}
	return out
}

// tableRunner answers queries from a table keyed by lowercased,
// space-collapsed SQL. Unknown queries return one row holding the query.
type tableRunner struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
}

func (r *tableRunner) Execute(_ context.Context, query, _ string) ([]executor.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if err, ok := r.errs[key]; ok {
		return nil, err
	}
	v, ok := r.values[key]
	if !ok {
		v = key
	}
	return []executor.Row{{sql.NullString{String: v, Valid: true}}}, nil
}

// answers generates SQL from a per-approach table of question → response.
type answers map[core.Approach]map[string]generator.Response

func (a answers) factory() generator.Factory {
	return generator.FactoryFunc(func(_ string, approach core.Approach) (generator.Generator, error) {
		table, ok := a[approach]
		if !ok {
			return nil, fmt.Errorf("no generator for %s", approach)
		}
		return generator.Func(func(_ context.Context, question string) (*generator.Response, error) {
			resp, ok := table[question]
			if !ok {
				return nil, fmt.Errorf("model refused %q", question)
			}
			return &resp, nil
		}), nil
	})
}

func setupStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.Open(context.Background(), ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRunner(t *testing.T, store Store, source QuestionSource, factory generator.Factory, runner compare.QueryRunner, opts Options) *Runner {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	return New(store, source, factory, compare.New(runner), opts)
}

func TestRunCompletes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(4, "concert_singer")
	gen := answers{
		core.ApproachBaseline: {
			"q0": {SQL: "SELECT g0", CostUSD: 0.01, TokensUsed: 100},
			"q1": {SQL: "SELECT x1", CostUSD: 0.01, TokensUsed: 100},
			"q2": {SQL: "SELECT wrong", CostUSD: 0.01, TokensUsed: 100},
			"q3": {SQL: "select G3", CostUSD: 0.01, TokensUsed: 100},
		},
		core.ApproachEnhanced: {
			"q0": {SQL: "SELECT g0", CostUSD: 0.02},
			"q1": {SQL: "SELECT g1", CostUSD: 0.02},
			"q2": {SQL: "SELECT g2", CostUSD: 0.02},
			"q3": {SQL: "SELECT g3", CostUSD: 0.02},
		},
	}
	// x1 returns the same rows as g1 without being the same statement.
	tr := &tableRunner{values: map[string]string{"select x1": "select g1"}}

	r := newRunner(t, store, qs, gen.factory(), tr, Options{BudgetUSD: 5})
	runID, err := r.Run(ctx, RunConfig{Name: "both", RunType: core.RunTypeBoth, CreatedBy: "test"})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, core.ReasonCompleted, run.StatusReason)
	assert.Equal(t, 4, run.QuestionCount)
	assert.Equal(t, 4, run.CompletedCount)
	assert.Zero(t, run.FailedCount)
	assert.Empty(t, run.CurrentQuestion)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, "Budget limit: $5.00", run.Notes)
	assert.InDelta(t, 0.12, run.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.04, run.BaselineCostUSD, 1e-9)
	assert.InDelta(t, 0.08, run.EnhancedCostUSD, 1e-9)

	require.NotNil(t, run.Metrics.BaselineExactMatch)
	assert.InDelta(t, 0.5, *run.Metrics.BaselineExactMatch, 1e-9)
	assert.InDelta(t, 0.75, *run.Metrics.BaselineExecMatch, 1e-9)
	assert.InDelta(t, 1.0, *run.Metrics.EnhancedExactMatch, 1e-9)
	assert.InDelta(t, 1.0, *run.Metrics.EnhancedExecMatch, 1e-9)

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		require.NotNil(t, res.Baseline)
		require.NotNil(t, res.Enhanced)
	}
	assert.Equal(t, 100, results[0].Baseline.TokensUsed)
	assert.False(t, results[1].Baseline.ExactMatch)
	assert.True(t, results[1].Baseline.ExecMatch)
	assert.False(t, results[2].Baseline.ExecMatch)
	assert.Empty(t, results[2].Baseline.Error)
}

func TestRunFiltersQuestions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := concat(makeQuestions(3, "pets_1"), makeQuestions(3, "world_1"))
	gen := answers{core.ApproachBaseline: {"q0": {SQL: "SELECT g0"}, "q1": {SQL: "SELECT g1"}, "q2": {SQL: "SELECT g2"}}}

	r := newRunner(t, store, qs, gen.factory(), &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "filtered", RunType: core.RunTypeBaseline, Databases: []string{"world_1"}, Limit: 2})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.QuestionCount)
	assert.Equal(t, []string{"world_1"}, run.Databases)

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, "world_1", res.Database)
		assert.Nil(t, res.Enhanced)
	}
}

func TestRunBudgetExceeded(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(3, "concert_singer")
	gen := answers{core.ApproachBaseline: {
		"q0": {SQL: "SELECT g0", CostUSD: 0.60},
		"q1": {SQL: "SELECT g1", CostUSD: 0.60},
		"q2": {SQL: "SELECT g2", CostUSD: 0.60},
	}}

	r := newRunner(t, store, qs, gen.factory(), &tableRunner{}, Options{BudgetUSD: 1.00})
	runID, err := r.Run(ctx, RunConfig{Name: "capped", RunType: core.RunTypeBaseline})
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	require.NotEmpty(t, runID)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, core.ReasonBudgetExceeded, run.StatusReason)
	assert.Contains(t, run.LastError, "budget exceeded")
	assert.LessOrEqual(t, run.TotalCostUSD, 1.20)
	assert.InDelta(t, 0.60, run.TotalCostUSD, 1e-9)
	assert.Equal(t, 1, run.CompletedCount)
	assert.NotNil(t, run.CompletedAt)

	// The question that broke the ceiling left no result behind.
	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dev_0000", results[0].QuestionID)
}

func TestRunCancelledThroughStore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(25, "concert_singer")
	var once sync.Once
	factory := generator.FactoryFunc(func(_ string, _ core.Approach) (generator.Generator, error) {
		return generator.Func(func(ctx context.Context, question string) (*generator.Response, error) {
			if question == "q3" {
				once.Do(func() {
					runs, err := store.ListRuns(ctx, 1)
					require.NoError(t, err)
					ok, err := store.CancelRun(ctx, runs[0].ID)
					require.NoError(t, err)
					require.True(t, ok)
				})
			}
			return &generator.Response{SQL: "SELECT 1", CostUSD: 0.001}, nil
		}), nil
	})

	r := newRunner(t, store, qs, factory, &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "cancel me", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Equal(t, core.ReasonUserCancelled, run.StatusReason)
	assert.Equal(t, 10, run.CompletedCount)
	assert.Empty(t, run.CurrentQuestion)
	assert.Nil(t, run.CompletedAt)
	assert.Nil(t, run.Metrics.BaselineExecMatch)

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.Equal(t, "dev_0009", results[9].QuestionID)
}

// cancelOn builds a factory whose generator cancels the latest run through
// the store while answering question, then responds with resp.
func cancelOn(t *testing.T, store *state.SQLiteStore, question string, resp generator.Response) generator.Factory {
	t.Helper()
	var once sync.Once
	return generator.FactoryFunc(func(_ string, _ core.Approach) (generator.Generator, error) {
		return generator.Func(func(ctx context.Context, q string) (*generator.Response, error) {
			if q == question {
				once.Do(func() {
					runs, err := store.ListRuns(ctx, 1)
					require.NoError(t, err)
					ok, err := store.CancelRun(ctx, runs[0].ID)
					require.NoError(t, err)
					require.True(t, ok)
				})
			}
			out := resp
			return &out, nil
		}), nil
	})
}

func TestRunCancelledAfterLastPoll(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Five questions poll once, before q0; the cancel lands on q2.
	factory := cancelOn(t, store, "q2", generator.Response{SQL: "SELECT 1", CostUSD: 0.001})
	r := newRunner(t, store, makeQuestions(5, "concert_singer"), factory, &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "short", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Equal(t, core.ReasonUserCancelled, run.StatusReason)
	assert.NotNil(t, run.CancelledAt)
	assert.Nil(t, run.CompletedAt)
	assert.Nil(t, run.Metrics.BaselineExecMatch)
	assert.Equal(t, 5, run.CompletedCount)
	assert.Empty(t, run.CurrentQuestion)
}

func TestRunCancelledKeepsStatusOnBudgetFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	factory := cancelOn(t, store, "q1", generator.Response{SQL: "SELECT 1", CostUSD: 0.6})
	r := newRunner(t, store, makeQuestions(3, "concert_singer"), factory, &tableRunner{}, Options{BudgetUSD: 1.0})
	runID, err := r.Run(ctx, RunConfig{Name: "late breach", RunType: core.RunTypeBaseline})
	require.ErrorIs(t, err, budget.ErrBudgetExceeded)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Equal(t, core.ReasonUserCancelled, run.StatusReason)
	assert.Empty(t, run.LastError)
	assert.Nil(t, run.CompletedAt)
	assert.Equal(t, 1, run.CompletedCount)
}

// cancelOnCreateStore cancels every run as soon as it is created.
type cancelOnCreateStore struct {
	*state.SQLiteStore
}

func (s *cancelOnCreateStore) CreateRun(ctx context.Context, spec core.RunSpec) (*core.Run, error) {
	run, err := s.SQLiteStore.CreateRun(ctx, spec)
	if err != nil {
		return nil, err
	}
	if _, err := s.CancelRun(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

func TestRunCancelledBeforeStart(t *testing.T) {
	base := setupStore(t)
	ctx := context.Background()

	gen := answers{core.ApproachBaseline: {"q0": {SQL: "SELECT g0"}}}
	r := newRunner(t, &cancelOnCreateStore{base}, makeQuestions(1, "db"), gen.factory(), &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "never started", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	run, err := base.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Nil(t, run.StartedAt)

	results, err := base.ListResults(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunCancelCheckInterval(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(10, "concert_singer")
	var once sync.Once
	factory := generator.FactoryFunc(func(_ string, _ core.Approach) (generator.Generator, error) {
		return generator.Func(func(ctx context.Context, question string) (*generator.Response, error) {
			if question == "q0" {
				once.Do(func() {
					runs, err := store.ListRuns(ctx, 1)
					require.NoError(t, err)
					_, err = store.CancelRun(ctx, runs[0].ID)
					require.NoError(t, err)
				})
			}
			return &generator.Response{SQL: "SELECT 1"}, nil
		}), nil
	})

	r := newRunner(t, store, qs, factory, &tableRunner{}, Options{CancelCheckInterval: 2})
	runID, err := r.Run(ctx, RunConfig{Name: "poll often", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRunContextCancelled(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	qs := makeQuestions(5, "concert_singer")
	factory := generator.FactoryFunc(func(_ string, _ core.Approach) (generator.Generator, error) {
		return generator.Func(func(ctx context.Context, question string) (*generator.Response, error) {
			if question == "q2" {
				cancel()
				return nil, ctx.Err()
			}
			return &generator.Response{SQL: "SELECT 1"}, nil
		}), nil
	})

	r := newRunner(t, store, qs, factory, &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "interrupted", RunType: core.RunTypeBaseline})
	assert.ErrorIs(t, err, context.Canceled)

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Equal(t, core.ReasonContextCancelled, run.StatusReason)
	assert.Equal(t, 2, run.CompletedCount)

	results, err := store.ListResults(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRunGeneratorFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(2, "concert_singer")
	gen := answers{
		core.ApproachBaseline: {"q0": {SQL: "SELECT g0", CostUSD: 0.1}, "q1": {SQL: "SELECT g1", CostUSD: 0.1}},
		core.ApproachEnhanced: {"q0": {SQL: "SELECT g0", CostUSD: 0.2}},
	}

	r := newRunner(t, store, qs, gen.factory(), &tableRunner{}, Options{BudgetUSD: 5})
	runID, err := r.Run(ctx, RunConfig{Name: "partial", RunType: core.RunTypeBoth})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	// A failed approach still completes the question.
	assert.Equal(t, 2, run.CompletedCount)
	assert.Zero(t, run.FailedCount)
	assert.InDelta(t, 0.4, run.TotalCostUSD, 1e-9)

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	failed := results[1].Enhanced
	require.NotNil(t, failed)
	assert.True(t, failed.Failed())
	assert.Contains(t, failed.Error, "model refused")
	assert.Zero(t, failed.CostUSD)
	assert.Zero(t, failed.TokensUsed)
	assert.Empty(t, failed.GeneratedSQL)
	assert.False(t, failed.ExecMatch)
	assert.True(t, results[1].Baseline.ExecMatch)

	assert.InDelta(t, 0.5, *run.Metrics.EnhancedExecMatch, 1e-9)
}

func TestRunGoldFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(1, "concert_singer")
	gen := answers{core.ApproachBaseline: {"q0": {SQL: "SELECT g0"}}}
	tr := &tableRunner{errs: map[string]error{"select g0": errors.New(`relation "g0" does not exist`)}}

	logger, logs := testutil.NewRecordingLogger(t)
	r := newRunner(t, store, qs, gen.factory(), tr, Options{Logger: logger})
	runID, err := r.Run(ctx, RunConfig{Name: "bad gold", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	warns := logs.Find(slog.LevelWarn, "gold SQL failed")
	require.Len(t, warns, 1)
	assert.Equal(t, "q0", warns[0].Attrs["question_id"])
	assert.Equal(t, "concert_singer", warns[0].Attrs["database"])

	results, err := store.ListResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	o := results[0].Baseline
	assert.True(t, o.ExactMatch)
	assert.False(t, o.ExecMatch)
	assert.Contains(t, o.Error, "Gold SQL failed")
}

// failingStore breaks SaveResult for one question.
type failingStore struct {
	*state.SQLiteStore
	failOn string
}

func (s *failingStore) SaveResult(ctx context.Context, r *core.Result) error {
	if r.QuestionID == s.failOn {
		return errors.New("disk full")
	}
	return s.SQLiteStore.SaveResult(ctx, r)
}

func TestRunQuestionFailureContinues(t *testing.T) {
	base := setupStore(t)
	store := &failingStore{SQLiteStore: base, failOn: "dev_0001"}
	ctx := context.Background()

	qs := makeQuestions(3, "concert_singer")
	gen := answers{core.ApproachBaseline: {"q0": {SQL: "SELECT g0"}, "q1": {SQL: "SELECT g1"}, "q2": {SQL: "SELECT g2"}}}

	r := newRunner(t, store, qs, gen.factory(), &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "flaky", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	run, err := base.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.CompletedCount)
	assert.Equal(t, 1, run.FailedCount)
}

// brokenStatusStore fails status polls.
type brokenStatusStore struct {
	*state.SQLiteStore
}

func (s *brokenStatusStore) GetRunStatus(context.Context, string) (core.RunStatus, error) {
	return "", errors.New("connection reset")
}

func TestRunFatalError(t *testing.T) {
	base := setupStore(t)
	ctx := context.Background()

	r := newRunner(t, &brokenStatusStore{base}, makeQuestions(2, "db"), answers{}.factory(), &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "fatal", RunType: core.RunTypeBaseline})
	require.ErrorContains(t, err, "connection reset")

	run, err := base.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, core.ReasonFatalError, run.StatusReason)
	assert.Equal(t, "connection reset", run.LastError)
}

// cancellingPollStore cancels the caller's context during a status poll.
type cancellingPollStore struct {
	*state.SQLiteStore
	cancel context.CancelFunc
}

func (s *cancellingPollStore) GetRunStatus(ctx context.Context, _ string) (core.RunStatus, error) {
	s.cancel()
	return "", ctx.Err()
}

func TestRunContextCancelledDuringPoll(t *testing.T) {
	base := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &cancellingPollStore{SQLiteStore: base, cancel: cancel}
	r := newRunner(t, store, makeQuestions(2, "db"), answers{}.factory(), &tableRunner{}, Options{})
	runID, err := r.Run(ctx, RunConfig{Name: "interrupted poll", RunType: core.RunTypeBaseline})
	require.ErrorIs(t, err, context.Canceled)

	run, err := base.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	assert.Equal(t, core.ReasonContextCancelled, run.StatusReason)
}

func TestRunRecoversGeneratorPanic(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	factory := generator.FactoryFunc(func(_ string, _ core.Approach) (generator.Generator, error) {
		return generator.Func(func(_ context.Context, question string) (*generator.Response, error) {
			if question == "q1" {
				var seen map[string]bool
				seen[question] = true
			}
			return &generator.Response{SQL: "SELECT 1"}, nil
		}), nil
	})

	r := newRunner(t, store, makeQuestions(3, "concert_singer"), factory, &tableRunner{}, Options{})
	var (
		runID string
		err   error
	)
	require.NotPanics(t, func() {
		runID, err = r.Run(ctx, RunConfig{Name: "panicky", RunType: core.RunTypeBaseline})
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "panic: assignment to entry in nil map")
	require.NotEmpty(t, runID)

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, core.ReasonFatalError, run.StatusReason)
	assert.Contains(t, run.LastError, "panic")
	assert.Equal(t, 1, run.CompletedCount)
	assert.Empty(t, run.CurrentQuestion)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	store := setupStore(t)
	r := newRunner(t, store, makeQuestions(1, "db"), answers{}.factory(), &tableRunner{}, Options{})

	_, err := r.Run(context.Background(), RunConfig{Name: "x", RunType: "sideways"})
	assert.Error(t, err)

	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunCachesGenerators(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	built := map[string]int{}
	factory := generator.FactoryFunc(func(database string, approach core.Approach) (generator.Generator, error) {
		mu.Lock()
		built[database+"/"+string(approach)]++
		mu.Unlock()
		return generator.Func(func(context.Context, string) (*generator.Response, error) {
			return &generator.Response{SQL: "SELECT 1"}, nil
		}), nil
	})

	qs := concat(makeQuestions(3, "pets_1"), makeQuestions(2, "world_1"))
	r := newRunner(t, store, qs, factory, &tableRunner{}, Options{})
	_, err := r.Run(ctx, RunConfig{Name: "one", RunType: core.RunTypeBoth})
	require.NoError(t, err)
	_, err = r.Run(ctx, RunConfig{Name: "two", RunType: core.RunTypeBaseline})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"pets_1/baseline":  1,
		"pets_1/enhanced":  1,
		"world_1/baseline": 1,
		"world_1/enhanced": 1,
	}, built)
}

func TestRunMany(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	qs := makeQuestions(3, "concert_singer")
	gen := answers{core.ApproachBaseline: {
		"q0": {SQL: "SELECT g0", CostUSD: 0.4},
		"q1": {SQL: "SELECT g1", CostUSD: 0.4},
		"q2": {SQL: "SELECT g2", CostUSD: 0.4},
	}}

	r := newRunner(t, store, qs, gen.factory(), &tableRunner{}, Options{BudgetUSD: 1.0})
	ids, err := r.RunMany(ctx, []RunConfig{
		{Name: "all", RunType: core.RunTypeBaseline},
		{Name: "two", RunType: core.RunTypeBaseline, Limit: 2},
	}, 2)

	// Each run has its own ledger: three questions overrun, two do not.
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.ErrorContains(t, err, `run "all"`)
	require.Len(t, ids, 2)

	first, err := store.GetRun(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, first.Status)

	second, err := store.GetRun(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, second.Status)
	assert.InDelta(t, 0.8, second.TotalCostUSD, 1e-9)
}
