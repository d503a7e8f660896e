package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(yearsCmd)
}

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "Lists the years and urls a harvest would query right now.",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv(envOptions{})
		defer e.Close()

		fetcher := e.pipeline.Fetcher()
		t := newTable()
		t.AppendHeader(table.Row{"Year", "URL"})
		for _, year := range fetcher.Years() {
			t.AppendRow(table.Row{year, fetcher.YearURL(year)})
		}
		t.Render()
	},
}
