package commands

import (
	"github.com/leapstack-labs/leapbench/internal/cli/output"
	"github.com/leapstack-labs/leapbench/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DatabaseStatsView is the JSON form of one database's accuracy.
type DatabaseStatsView struct {
	Database         string  `json:"database"`
	Total            int     `json:"total"`
	BaselineCorrect  int     `json:"baseline_correct"`
	EnhancedCorrect  int     `json:"enhanced_correct"`
	BaselineAccuracy float64 `json:"baseline_accuracy"`
	EnhancedAccuracy float64 `json:"enhanced_accuracy"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <run-id>",
		Short: "Show execution accuracy per database",
		Args:  cobra.ExactArgs(1),
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
			stats, err := cmdCtx.Store.AggregateByDatabase(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			return renderStats(cmdCtx.Renderer, run, stats)
		},
	}
}

func renderStats(r *output.Renderer, run *core.Run, stats []core.DatabaseStats) error {
	if r.EffectiveMode() == output.ModeJSON {
		views := make([]DatabaseStatsView, 0, len(stats))
		for _, st := range stats {
			views = append(views, DatabaseStatsView{
				Database:         st.Database,
				Total:            st.Total,
				BaselineCorrect:  st.BaselineCorrect,
				EnhancedCorrect:  st.EnhancedCorrect,
				BaselineAccuracy: st.BaselineAccuracy(),
				EnhancedAccuracy: st.EnhancedAccuracy(),
			})
		}
		return r.JSON(views)
	}

	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)
	approaches := run.RunType.Approaches()

	header := []string{"Database", "Questions"}
	for _, a := range approaches {
		header = append(header, title.String(string(a)))
	}

	var total core.DatabaseStats
	rows := make([][]string, 0, len(stats)+1)
	for _, st := range stats {
		rows = append(rows, statsRow(p, st.Database, st, approaches))
		total.Total += st.Total
		total.BaselineCorrect += st.BaselineCorrect
		total.EnhancedCorrect += st.EnhancedCorrect
	}
	if len(stats) > 1 {
		rows = append(rows, statsRow(p, "all", total, approaches))
	}

	r.Header(1, p.Sprintf("Execution accuracy for %s (%d questions)", run.Name, total.Total))
	if len(stats) == 0 {
		r.Println("No results yet.")
		return nil
	}
	r.Table(header, rows)
	return nil
}

func statsRow(p *message.Printer, label string, st core.DatabaseStats, approaches []core.Approach) []string {
	row := []string{label, p.Sprintf("%d", st.Total)}
	for _, a := range approaches {
		correct, acc := st.BaselineCorrect, st.BaselineAccuracy()
		if a == core.ApproachEnhanced {
			correct, acc = st.EnhancedCorrect, st.EnhancedAccuracy()
		}
		row = append(row, p.Sprintf("%d (%.1f%%)", correct, acc*100))
	}
	return row
}
