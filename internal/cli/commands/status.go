package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapbench/pkg/core"
	"github.com/spf13/cobra"
)

// fallbackRefresh re-reads the run when no file event arrives.
const fallbackRefresh = 5 * time.Second

// RunGetter reads one run.
type RunGetter interface {
	GetRun(ctx context.Context, runID string) (*core.Run, error)
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run",
		Long: `Show status, progress, costs and, once completed, the accuracy of a run.

With --follow the view refreshes whenever the state database changes and
the command exits when the run reaches a terminal status.`,
		Example: `  # Show a run
  leapbench status 0b6f4a5e-2c1d-4d8e-9d55-3f1a6c0d2b11

  # Watch a run until it finishes
  leapbench status 0b6f4a5e-2c1d-4d8e-9d55-3f1a6c0d2b11 --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			show := func(run *core.Run) error {
				return renderRun(cmdCtx.Renderer, run)
			}
			if !follow {
				run, err := cmdCtx.Store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return show(run)
			}
			return followRun(cmd.Context(), cmdCtx.Store, cmdCtx.Store.Path(), args[0], fallbackRefresh, cmdCtx.Logger, show)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Refresh until the run finishes")

	return cmd
}

// followRun calls show with the current run and again whenever the state
// database at statePath changes, until the run is terminal or ctx is done.
func followRun(ctx context.Context, store RunGetter, statePath, runID string, refresh time.Duration,
	logger *slog.Logger, show func(*core.Run) error) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := show(run); err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// SQLite writes land in the -wal and -journal siblings, so watch the directory.
	if err := watcher.Add(filepath.Dir(statePath)); err != nil {
		return fmt.Errorf("failed to watch state directory: %w", err)
	}
	base := filepath.Base(statePath)

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	last := run
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
			continue
		case <-ticker.C:
		}

		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if changed(last, run) {
			if err := show(run); err != nil {
				return err
			}
			last = run
		}
		if run.Status.IsTerminal() {
			return nil
		}
	}
}

func changed(a, b *core.Run) bool {
	return a.Status != b.Status ||
		a.CompletedCount != b.CompletedCount ||
		a.FailedCount != b.FailedCount ||
		a.CurrentQuestion != b.CurrentQuestion ||
		a.TotalCostUSD != b.TotalCostUSD
}
