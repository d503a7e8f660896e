package commands

import (
	"mmp-pipeline/internal/pipeline"
	"mmp-pipeline/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runOut     *string
	runPublish *bool
	runDryRun  *bool
)

func init() {
	runOut = runCmd.Flags().String("out", "", "The directory to write the csv resource to, a temporary directory is used when empty.")
	runPublish = runCmd.Flags().Bool("publish", false, "Publish the dataset to the configured catalog.")
	runDryRun = runCmd.Flags().Bool("dry-run", false, "Log the catalog payload instead of publishing it.")
	rootCmd.AddCommand(runCmd)
}

func printResult(result pipeline.Result) {
	t := newTable()
	t.AppendHeader(table.Row{"Year", "Rows"})
	for _, y := range result.Years {
		t.AppendRow(table.Row{y.Year, y.Rows})
	}
	t.AppendFooter(table.Row{"Total", result.Rows})
	t.Render()
}

var runCmd = &cobra.Command{
	Use:   "run [--out <dir>] [--publish] [--dry-run]",
	Short: "Harvests every configured year and writes the dataset resource.",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv(envOptions{
			publish: *runPublish,
			dryRun:  *runDryRun,
			outDir:  *runOut,
		})
		defer e.Close()

		result, err := e.pipeline.Run(cmd.Context())
		printResult(result)
		if err != nil {
			e.Close()
			serviceutil.Fatal("harvest failed", err)
		}
	},
}
