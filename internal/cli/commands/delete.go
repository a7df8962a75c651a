package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its results",
		Long: `Delete a run together with all of its results.

Runs that are still pending or running are refused unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runID := args[0]
			status, err := cmdCtx.Store.GetRunStatus(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if !status.IsTerminal() && !force {
				return fmt.Errorf("run %s is %s\nHint: cancel it first or use --force", runID, status)
			}
			if err := cmdCtx.Store.DeleteRun(cmd.Context(), runID); err != nil {
				return err
			}
			cmdCtx.Logger.Info("run deleted", "run_id", runID)
			cmdCtx.Renderer.Success(fmt.Sprintf("Deleted run %s", runID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete even if the run has not finished")

	return cmd
}
