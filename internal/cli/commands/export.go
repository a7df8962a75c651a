package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapbench/internal/export"
	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run and its results to DuckDB",
		Long: `Copy a run and its results into a DuckDB database for analysis.

Exporting the same run again replaces its rows.`,
		Example: `  leapbench export 0b6f4a5e-2c1d-4d8e-9d55-3f1a6c0d2b11 --out analysis.duckdb
  duckdb analysis.duckdb "SELECT database_name, avg(exec_match::INT) FROM results GROUP BY 1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := cmdCtx.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results, err := cmdCtx.Store.ListResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if err := export.ToDuckDB(cmd.Context(), out, run, results); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Exported %d results of run %s to %s", len(results), run.ID, out))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "leapbench.duckdb", "DuckDB database file")

	return cmd
}
