package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muradrava/reportsync/internal/config"
	"github.com/muradrava/reportsync/internal/models"
	"github.com/muradrava/reportsync/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Archive and publish the triggered report",
	Long: `Execute one agent run:
1. Kill stray git processes and remove stale lock files
2. Log remotes and make sure a commit identity is set
3. Read the trigger file (DAILY or ALERT)
4. Copy the report image into the publish directory
5. Pull from the remote, recovering from locks, local edits and divergence
6. Stage and commit the report (skipped when unchanged)
7. Push, rebasing onto the remote when rejected
8. Send Telegram notification (if configured)`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("repository", cfg.Repository.Path).
		Str("source_dir", cfg.Report.SourceDir).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := runner.New(log.Logger, *cfg).Run(ctx)
	printSummary(os.Stdout, summary)
	if err != nil {
		log.Error().Err(err).Msg("agent run failed")
		return err
	}

	return nil
}

func printSummary(w io.Writer, s *models.RunSummary) {
	if s == nil {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run summary:")
	fmt.Fprintf(w, "  Run ID: %s\n", s.RunID)
	fmt.Fprintf(w, "  Status: %s\n", s.Status)
	fmt.Fprintf(w, "  Report: %s (%s)\n", s.Kind, s.Date)
	fmt.Fprintf(w, "  Source: %s\n", s.SourceFile)
	if s.ArchivedFile != "" {
		fmt.Fprintf(w, "  Archived: %s\n", s.ArchivedFile)
	}
	if s.Branch != "" {
		fmt.Fprintf(w, "  Branch: %s\n", s.Branch)
	}
	if s.SyncState != "" {
		fmt.Fprintf(w, "  Sync: %s\n", s.SyncState)
	}
	if s.CommitState != "" {
		fmt.Fprintf(w, "  Commit: %s %s\n", s.CommitState, s.Commit)
	}
	fmt.Fprintf(w, "  Duration: %s\n", s.Duration.Round(time.Millisecond))
	if s.FailedStep != "" {
		fmt.Fprintf(w, "  Failed step: %s\n", s.FailedStep)
		fmt.Fprintf(w, "  Error: %s\n", s.Error)
	}
}
