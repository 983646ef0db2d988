// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/spf13/viper"
)

// Default values applied when a setting is absent.
const (
	DefaultExecutable     = "git"
	DefaultRemote         = "origin"
	DefaultPublishDir     = "reports"
	DefaultConflictFile   = "upload_to_github.py"
	DefaultTimeout        = 30 * time.Second
	DefaultLockRetries    = 3
	DefaultPushRetries    = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultIdentityName   = "MuraDrava-AutoUpload"
	DefaultIdentityEmail  = "mura.drava.auto@example.com"
	DefaultTriggerFile    = "Trigger.txt"
	DefaultRegularSource  = "redovni.jpeg"
	DefaultSpecialSource  = "posebni.jpeg"
	DefaultSettleWait     = time.Second
	DefaultViewerListen   = ":8501"
	DefaultViewerTitle    = "MuraDrava-FFS"
	DefaultDownloadPrefix = "MuraDrava_"
	DefaultMaxUploadBytes = 20 << 20
	DefaultDebounce       = 500 * time.Millisecond
)

// DefaultLockFiles are the git lock markers removed before each run.
var DefaultLockFiles = []string{
	"index.lock",
	"HEAD.lock",
	"config.lock",
	"refs/heads/main.lock",
	"refs/heads/master.lock",
}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadDefaults returns the configuration used when no file is given.
func (p *Parser) LoadDefaults() (*models.Config, error) {
	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.Repository = models.RepositoryConfig{
		Path:         p.expandEnv(p.v.GetString("repository.path")),
		Executable:   p.v.GetString("repository.executable"),
		Remote:       p.v.GetString("repository.remote"),
		Branch:       p.v.GetString("repository.branch"),
		PublishDir:   p.v.GetString("repository.publish_dir"),
		ConflictFile: p.v.GetString("repository.conflict_file"),
		RestoreStash: p.v.GetBool("repository.restore_stash"),
		Timeout:      p.v.GetDuration("repository.timeout"),
		LockRetries:  p.v.GetInt("repository.lock_retries"),
		PushRetries:  p.v.GetInt("repository.push_retries"),
		RetryDelay:   p.v.GetDuration("repository.retry_delay"),
		LockFiles:    p.v.GetStringSlice("repository.lock_files"),
		Identity: models.Identity{
			Name:  p.v.GetString("repository.identity.name"),
			Email: p.v.GetString("repository.identity.email"),
		},
	}

	if cfg.Repository.Path == "" {
		cfg.Repository.Path = "."
	}
	if cfg.Repository.Executable == "" {
		cfg.Repository.Executable = DefaultExecutable
	}
	if cfg.Repository.Remote == "" {
		cfg.Repository.Remote = DefaultRemote
	}
	if cfg.Repository.PublishDir == "" {
		cfg.Repository.PublishDir = DefaultPublishDir
	}
	if !p.v.IsSet("repository.conflict_file") {
		cfg.Repository.ConflictFile = DefaultConflictFile
	}
	if cfg.Repository.Timeout == 0 {
		cfg.Repository.Timeout = DefaultTimeout
	}
	if cfg.Repository.LockRetries == 0 {
		cfg.Repository.LockRetries = DefaultLockRetries
	}
	if cfg.Repository.PushRetries == 0 {
		cfg.Repository.PushRetries = DefaultPushRetries
	}
	if !p.v.IsSet("repository.retry_delay") {
		cfg.Repository.RetryDelay = DefaultRetryDelay
	}
	if len(cfg.Repository.LockFiles) == 0 {
		cfg.Repository.LockFiles = append([]string(nil), DefaultLockFiles...)
	}
	if cfg.Repository.Identity.Name == "" {
		cfg.Repository.Identity.Name = DefaultIdentityName
	}
	if cfg.Repository.Identity.Email == "" {
		cfg.Repository.Identity.Email = DefaultIdentityEmail
	}

	if cfg.Repository.LockRetries < 0 || cfg.Repository.PushRetries < 0 {
		return nil, fmt.Errorf("repository.lock_retries and repository.push_retries must be positive")
	}
	if err := checkRelative(cfg.Repository.PublishDir); err != nil {
		return nil, fmt.Errorf("repository.publish_dir %w", err)
	}

	cfg.Report = models.ReportSettings{
		SourceDir:     p.expandEnv(p.v.GetString("report.source_dir")),
		TriggerFile:   p.expandEnv(p.v.GetString("report.trigger_file")),
		RegularSource: p.v.GetString("report.regular_source"),
		SpecialSource: p.v.GetString("report.special_source"),
		SummaryFile:   p.expandEnv(p.v.GetString("report.summary_file")),
	}

	if cfg.Report.TriggerFile == "" {
		cfg.Report.TriggerFile = DefaultTriggerFile
	}
	if cfg.Report.RegularSource == "" {
		cfg.Report.RegularSource = DefaultRegularSource
	}
	if cfg.Report.SpecialSource == "" {
		cfg.Report.SpecialSource = DefaultSpecialSource
	}

	cfg.Hygiene = models.HygieneSettings{
		KillProcesses: true,
		SettleWait:    p.v.GetDuration("hygiene.settle_wait"),
	}
	if p.v.IsSet("hygiene.kill_processes") {
		cfg.Hygiene.KillProcesses = p.v.GetBool("hygiene.kill_processes")
	}
	if !p.v.IsSet("hygiene.settle_wait") {
		cfg.Hygiene.SettleWait = DefaultSettleWait
	}

	cfg.Viewer = models.ViewerConfig{
		Dir:            p.expandEnv(p.v.GetString("viewer.dir")),
		Listen:         p.v.GetString("viewer.listen"),
		Title:          p.v.GetString("viewer.title"),
		DownloadPrefix: p.v.GetString("viewer.download_prefix"),
		MaxUploadBytes: p.v.GetInt64("viewer.max_upload_bytes"),
	}

	if cfg.Viewer.Dir == "" {
		cfg.Viewer.Dir = DefaultPublishDir
	}
	if cfg.Viewer.Listen == "" {
		cfg.Viewer.Listen = DefaultViewerListen
	}
	if cfg.Viewer.Title == "" {
		cfg.Viewer.Title = DefaultViewerTitle
	}
	if !p.v.IsSet("viewer.download_prefix") {
		cfg.Viewer.DownloadPrefix = DefaultDownloadPrefix
	}
	if cfg.Viewer.MaxUploadBytes == 0 {
		cfg.Viewer.MaxUploadBytes = DefaultMaxUploadBytes
	}

	cfg.Watch = models.WatchSettings{
		Debounce: p.v.GetDuration("watch.debounce"),
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// checkRelative rejects paths that would leave the repository.
func checkRelative(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("must be relative to the repository, got %q", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("must stay inside the repository, got %q", path)
	}
	return nil
}

// Validate performs validation on the loaded configuration for agent runs.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Report.SourceDir == "" {
		return fmt.Errorf("report.source_dir is required")
	}

	if cfg.Repository.Path == "" {
		return fmt.Errorf("repository.path is required")
	}

	if err := checkRelative(cfg.Repository.PublishDir); err != nil {
		return fmt.Errorf("repository.publish_dir %w", err)
	}

	if cfg.Report.RegularSource == "" || cfg.Report.SpecialSource == "" {
		return fmt.Errorf("report.regular_source and report.special_source are required")
	}

	return nil
}
