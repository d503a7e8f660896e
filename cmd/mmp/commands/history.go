package commands

import (
	"errors"
	"time"

	"mmp-pipeline/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit *int
	historyRun   *string
)

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 20, "The number of runs to list.")
	historyRun = historyCmd.Flags().String("run", "", "Show the per-year row counts of a single run.")
	rootCmd.AddCommand(historyCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>] [--run <id>]",
	Short: "Lists recent harvests recorded in the history database.",
	Run: func(cmd *cobra.Command, args []string) {
		db, store := openHistory(readConfig())
		if store == nil {
			serviceutil.Fatal("failed to open history", errors.New("no database is configured"))
		}
		defer db.Close()

		if *historyRun != "" {
			years, err := store.Years(cmd.Context(), *historyRun)
			if err != nil {
				serviceutil.Fatal("failed to read run years", err)
			}
			t := newTable()
			t.AppendHeader(table.Row{"Year", "Rows"})
			for _, y := range years {
				t.AppendRow(table.Row{y.Year, y.Rows})
			}
			t.Render()
			return
		}

		runs, err := store.List(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to list runs", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Run", "Started", "Finished", "Status", "Rows", "Period", "Error"})
		for _, r := range runs {
			period := ""
			if r.MinDate != "" {
				period = r.MinDate + " - " + r.MaxDate
			}
			message := r.Error
			if r.Stage != "" {
				message = r.Stage + ": " + message
			}
			t.AppendRow(table.Row{
				r.ID,
				formatTime(r.StartedAt),
				formatTime(r.FinishedAt),
				r.Status,
				r.Rows,
				period,
				message,
			})
		}
		t.Render()
	},
}
