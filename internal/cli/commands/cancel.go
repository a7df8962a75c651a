package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCancelCommand creates the cancel command.
func NewCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending or running run",
		Long: `Flag a run as cancelled. The process executing it notices the flag at its
next status check and stops after saving its progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runID := args[0]
			ok, err := cmdCtx.Store.CancelRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if !ok {
				status, err := cmdCtx.Store.GetRunStatus(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return fmt.Errorf("run %s already finished with status %s", runID, status)
			}
			cmdCtx.Logger.Info("cancellation requested", "run_id", runID)
			cmdCtx.Renderer.Success(fmt.Sprintf("Cancellation requested for run %s", runID))
			return nil
		},
	}
}
