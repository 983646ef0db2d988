package main

import (
	"fmt"
	"os"

	"github.com/muradrava/reportsync/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration and print the effective settings without touching the repository.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	branch := cfg.Repository.Branch
	if branch == "" {
		branch = "(detect main/master)"
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Repository:")
	fmt.Printf("  Path: %s\n", cfg.Repository.Path)
	fmt.Printf("  Remote: %s\n", cfg.Repository.Remote)
	fmt.Printf("  Branch: %s\n", branch)
	fmt.Printf("  Publish dir: %s\n", cfg.Repository.PublishDir)
	fmt.Printf("  Conflict file: %s\n", cfg.Repository.ConflictFile)
	fmt.Printf("  Timeout: %s\n", cfg.Repository.Timeout)
	fmt.Printf("  Lock retries: %d (delay %s)\n", cfg.Repository.LockRetries, cfg.Repository.RetryDelay)
	fmt.Printf("  Push retries: %d\n", cfg.Repository.PushRetries)
	fmt.Printf("  Identity: %s <%s>\n", cfg.Repository.Identity.Name, cfg.Repository.Identity.Email)
	fmt.Println()
	fmt.Println("Report:")
	fmt.Printf("  Source dir: %s\n", cfg.Report.SourceDir)
	fmt.Printf("  Trigger file: %s\n", cfg.Report.TriggerFile)
	fmt.Printf("  Regular source: %s\n", cfg.Report.RegularSource)
	fmt.Printf("  Special source: %s\n", cfg.Report.SpecialSource)
	if cfg.Report.SummaryFile != "" {
		fmt.Printf("  Summary file: %s\n", cfg.Report.SummaryFile)
	}
	fmt.Println()
	fmt.Println("Hygiene:")
	fmt.Printf("  Kill git processes: %v\n", cfg.Hygiene.KillProcesses)
	fmt.Printf("  Lock files: %v\n", cfg.Repository.LockFiles)
	fmt.Println()
	fmt.Println("Viewer:")
	fmt.Printf("  Dir: %s\n", cfg.Viewer.Dir)
	fmt.Printf("  Listen: %s\n", cfg.Viewer.Listen)
	fmt.Printf("  Download prefix: %s\n", cfg.Viewer.DownloadPrefix)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
