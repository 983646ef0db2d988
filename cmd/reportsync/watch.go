package main

import (
	"context"
	"os"

	"github.com/muradrava/reportsync/internal/config"
	"github.com/muradrava/reportsync/internal/services/runner"
	"github.com/muradrava/reportsync/internal/services/watcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runNow bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the agent whenever the trigger file is written",
	Long: `Watch the trigger file and execute one agent run for every settled burst of writes.
Runs never overlap. Failed runs are logged and watching continues.`,
	RunE: watchTrigger,
}

func init() {
	watchCmd.Flags().BoolVar(&runNow, "run-now", false, "execute one run before waiting for changes")
}

func watchTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	agent := runner.New(log.Logger, *cfg)
	runOnce := func(ctx context.Context) {
		summary, err := agent.Run(ctx)
		printSummary(os.Stdout, summary)
		if err != nil {
			log.Error().Err(err).Msg("agent run failed")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	if runNow {
		runOnce(ctx)
	}

	w := watcher.New(log.Logger, cfg.Report.TriggerFile, cfg.Watch.Debounce, runOnce)
	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("watcher failed")
		return err
	}
	return nil
}
