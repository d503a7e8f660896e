package commands

import (
	"errors"
	"log/slog"

	"mmp-pipeline/lib/chrono"
	"mmp-pipeline/lib/serviceutil"
	"mmp-pipeline/lib/telemetry"

	"github.com/spf13/cobra"
)

var schedulePublish *bool

func init() {
	schedulePublish = scheduleCmd.Flags().Bool("publish", false, "Publish the dataset after every harvest.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--publish]",
	Short: "Harvests on the configured cron schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		e := openEnv(envOptions{publish: *schedulePublish})
		defer e.Close()
		if e.cfg.Schedule == "" {
			e.Close()
			serviceutil.Fatal("failed to start scheduler", errors.New("no schedule is configured"))
		}

		clock, err := chrono.NewStandardImpl(e.cfg.Timezone)
		if err != nil {
			e.Close()
			serviceutil.Fatal("failed to load timezone", err)
		}
		cron := chrono.NewStandardCron(clock, telemetry.SlogAPI{})
		err = cron.Cron(e.cfg.Schedule, func() {
			result, err := e.pipeline.Run(ctx)
			if err != nil {
				slog.Error("scheduled harvest failed", "run_id", result.RunID, "err", err)
				return
			}
			slog.Info("scheduled harvest finished", "run_id", result.RunID, "rows", result.Rows)
		})
		if err != nil {
			e.Close()
			serviceutil.Fatal("invalid schedule", err)
		}

		telemetry.InstrumentPerfStats(ctx)

		slog.Info("waiting for schedule", "spec", e.cfg.Schedule)
		cron.Start()
		<-ctx.Done()
		cron.Stop()
	},
}
