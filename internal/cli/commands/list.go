package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapbench/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List benchmark runs, newest first",
		Long: `List benchmark runs with their status, progress and cost.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List the 20 most recent runs
  leapbench list

  # List every run as JSON
  leapbench list --limit 0 --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := cmdCtx.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				views := make([]RunView, 0, len(runs))
				for _, run := range runs {
					views = append(views, newRunView(run))
				}
				return r.JSON(views)
			}

			if len(runs) == 0 {
				r.Println("No runs yet.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.Name,
					string(run.RunType),
					r.Status(run.Status),
					fmt.Sprintf("%d/%d", run.CompletedCount+run.FailedCount, run.QuestionCount),
					formatCost(run.TotalCostUSD),
					strings.Join(run.Databases, ","),
					formatTime(&run.CreatedAt),
				})
			}
			r.Table([]string{"ID", "Name", "Type", "Status", "Progress", "Cost", "Databases", "Created"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")

	return cmd
}
