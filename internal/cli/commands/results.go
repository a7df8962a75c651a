package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapbench/internal/cli/output"
	"github.com/leapstack-labs/leapbench/internal/state"
	"github.com/spf13/cobra"
)

// ResultsOptions holds options for the results command.
type ResultsOptions struct {
	Database     string
	FailuresOnly bool
	Limit        int
	Offset       int
}

// ResultsPage is the JSON output of the results command.
type ResultsPage struct {
	RunID   string       `json:"run_id"`
	Total   int          `json:"total"`
	Offset  int          `json:"offset"`
	Results []ResultView `json:"results"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand() *cobra.Command {
	opts := &ResultsOptions{}
	cmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Show per-question results of a run",
		Long: `Show the per-question outcome of each evaluated approach.

An outcome reads exec+exact, exec, exact, miss or error.`,
		Example: `  # First page of results
  leapbench results 0b6f4a5e-2c1d-4d8e-9d55-3f1a6c0d2b11

  # Execution misses on one database
  leapbench results 0b6f4a5e-2c1d-4d8e-9d55-3f1a6c0d2b11 --database pets_1 --failures`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return showResults(cmd, cmdCtx, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "database", "", "Only results of this database")
	cmd.Flags().BoolVar(&opts.FailuresOnly, "failures", false, "Only results that missed execution match")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "Page size (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Results to skip")

	return cmd
}

func showResults(cmd *cobra.Command, cmdCtx *CommandContext, runID string, opts *ResultsOptions) error {
	// Resolve the run first so an unknown ID is an error, not an empty page.
	if _, err := cmdCtx.Store.GetRunStatus(cmd.Context(), runID); err != nil {
		return err
	}

	results, total, err := cmdCtx.Store.QueryResults(cmd.Context(), runID, state.ResultFilter{
		Database:     opts.Database,
		FailuresOnly: opts.FailuresOnly,
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		page := ResultsPage{RunID: runID, Total: total, Offset: opts.Offset, Results: make([]ResultView, 0, len(results))}
		for _, res := range results {
			page.Results = append(page.Results, newResultView(res))
		}
		return r.JSON(page)
	}

	if len(results) == 0 {
		r.Println("No matching results.")
		return nil
	}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{
			res.QuestionID,
			res.Database,
			truncate(res.Question, 60),
			formatOutcome(res.Baseline),
			formatOutcome(res.Enhanced),
		})
	}
	r.Table([]string{"Question", "Database", "Text", "Baseline", "Enhanced"}, rows)
	r.Println(r.Muted(fmt.Sprintf("Showing %d-%d of %d", opts.Offset+1, opts.Offset+len(results), total)))
	return nil
}
