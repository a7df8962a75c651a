package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"github.com/leapstack-labs/leapbench/internal/benchmark"
	"github.com/leapstack-labs/leapbench/internal/cli/config"
	"github.com/leapstack-labs/leapbench/internal/compare"
	"github.com/leapstack-labs/leapbench/internal/executor"
	"github.com/leapstack-labs/leapbench/internal/generator"
	"github.com/leapstack-labs/leapbench/internal/questions"
	"github.com/leapstack-labs/leapbench/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Name        string
	RunType     string
	Databases   []string
	Limit       int
	Notes       string
	PerDatabase bool
	Parallel    int
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark over the question set",
		Long: `Evaluate generated SQL against the gold SQL of every question.

Each question is scored by exact match after normalization and by execution
match against the benchmark database. Progress, costs and results are stored
in the state database so a run can be followed, cancelled and inspected from
another terminal.

Interrupting the command cancels the run. Exceeding the budget fails it.`,
		Example: `  # Score both approaches on the whole question set
  leapbench run --name nightly --baseline-predictions base.jsonl --enhanced-predictions enh.jsonl

  # Only the enhanced approach, two databases, first 50 questions
  leapbench run --type enhanced --databases concert_singer,pets_1 --limit 50

  # One run per database, three at a time
  leapbench run --databases concert_singer,pets_1,car_1 --per-database --parallel 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Run name (default: generated)")
	cmd.Flags().StringVar(&opts.RunType, "type", string(core.RunTypeBoth), "Approaches to evaluate: baseline, enhanced or both")
	cmd.Flags().StringSliceVar(&opts.Databases, "databases", nil, "Only evaluate questions of these databases")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Evaluate at most this many questions (0 for all)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "Free-form notes stored with the run")
	cmd.Flags().BoolVar(&opts.PerDatabase, "per-database", false, "Start one run per database")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "Runs executed at the same time with --per-database")

	cmd.Flags().String("database-url", "", "PostgreSQL URL of the benchmark databases")
	cmd.Flags().String("questions", "", "Question set (Spider .json or .yaml)")
	cmd.Flags().Float64("budget", 0, "Spending limit per run in USD (0 for unlimited)")
	cmd.Flags().String("baseline-predictions", "", "JSONL predictions of the baseline approach")
	cmd.Flags().String("enhanced-predictions", "", "JSONL predictions of the enhanced approach")
	cmd.Flags().Int32("min-conns", 0, "Connections kept open to the benchmark database")
	cmd.Flags().Int32("max-conns", 0, "Maximum connections to the benchmark database")
	cmd.Flags().Duration("timeout", 0, "Statement timeout per query")

	_ = cmd.RegisterFlagCompletionFunc("type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"baseline", "enhanced", "both"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg := config.FromContext(cmd.Context())
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}
	configs, err := buildRunConfigs(opts, currentUser(), time.Now())
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, closeRunner, err := newRunner(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeRunner()

	ids, runErr := runner.RunMany(ctx, configs, opts.Parallel)

	r := cmdCtx.Renderer
	for _, id := range ids {
		if id == "" {
			continue
		}
		run, err := cmdCtx.Store.GetRun(context.WithoutCancel(ctx), id)
		if err != nil {
			return errors.Join(runErr, err)
		}
		if err := renderRun(r, run); err != nil {
			return err
		}
	}
	return runErr
}

// newRunner wires the benchmark database, predictions and question set into
// a Runner.
func newRunner(ctx context.Context, cmdCtx *CommandContext) (*benchmark.Runner, func(), error) {
	cfg := cmdCtx.Cfg

	factory, err := generator.LoadReplay(map[core.Approach]string{
		core.ApproachBaseline: cfg.Predictions.Baseline,
		core.ApproachEnhanced: cfg.Predictions.Enhanced,
	})
	if err != nil {
		return nil, nil, err
	}

	pool, err := executor.OpenPool(ctx, executor.PoolConfig{
		URL:      cfg.DatabaseURL,
		MinConns: cfg.Pool.MinConns,
		MaxConns: cfg.Pool.MaxConns,
	}, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}

	exec := executor.New(pool.DB,
		executor.WithLogger(cmdCtx.Logger),
		executor.WithTimeout(cfg.StatementTimeout))

	runner := benchmark.New(cmdCtx.Store, questions.Source{Path: cfg.QuestionsPath}, factory, compare.New(exec), benchmark.Options{
		BudgetUSD:           cfg.BudgetUSD,
		CancelCheckInterval: cfg.CancelCheckInterval,
		Logger:              cmdCtx.Logger,
	})

	closeFn := func() {
		if err := pool.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close connection pool", "error", err)
		}
	}
	return runner, closeFn, nil
}

// buildRunConfigs turns the command options into one config, or one per
// database with --per-database.
func buildRunConfigs(opts *RunOptions, createdBy string, now time.Time) ([]benchmark.RunConfig, error) {
	rt, err := core.ParseRunType(opts.RunType)
	if err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("--limit must not be negative")
	}
	if opts.PerDatabase && len(opts.Databases) == 0 {
		return nil, fmt.Errorf("--per-database needs --databases")
	}
	if opts.Parallel < 1 {
		return nil, fmt.Errorf("--parallel must be at least 1")
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", rt, now.Format("20060102-150405"))
	}
	base := benchmark.RunConfig{
		Name:      name,
		RunType:   rt,
		Databases: opts.Databases,
		Limit:     opts.Limit,
		CreatedBy: createdBy,
		Notes:     opts.Notes,
	}
	if !opts.PerDatabase {
		return []benchmark.RunConfig{base}, nil
	}

	configs := make([]benchmark.RunConfig, 0, len(opts.Databases))
	for _, db := range opts.Databases {
		c := base
		c.Databases = []string{db}
		c.Name = base.Name + "-" + db
		configs = append(configs, c)
	}
	return configs, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
