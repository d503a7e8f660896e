package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mmp-pipeline/lib/telemetry"

	"github.com/spf13/cobra"
)

const serviceName = "mmp"

var (
	configPath *string
	debug      *bool
	tel        telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "mmp",
	Short: "mmp harvests Missing Migrants Project incidents into a catalog dataset.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debug)

		var err error
		tel, err = telemetry.SetupFromEnv(cmd.Context(), serviceName)
		if err != nil {
			slog.Warn("telemetry is disabled", "err", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := tel.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read, config.local.json5 next to it overrides it.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Log debug messages.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
