// Package models contains the data structures used throughout reportsync.
package models

import "time"

// Config holds the complete configuration for the agent and the viewer.
type Config struct {
	Repository RepositoryConfig
	Report     ReportSettings
	Hygiene    HygieneSettings
	Viewer     ViewerConfig
	Watch      WatchSettings
	Telegram   *TelegramConfig // nil if not configured
}

// RepositoryConfig holds the git working tree and retry settings.
type RepositoryConfig struct {
	Path         string // working tree root, all git commands run here
	Executable   string
	Remote       string
	Branch       string // empty means detect main/master from the remote
	PublishDir   string // relative to Path
	ConflictFile string // file discarded when a pull cannot merge
	RestoreStash bool   // pop the auto-stash after a successful pull
	Timeout      time.Duration
	LockRetries  int
	PushRetries  int
	RetryDelay   time.Duration
	LockFiles    []string // relative to Path/.git
	Identity     Identity
}

// Identity is the author identity used when git has none configured.
type Identity struct {
	Name  string
	Email string
}

// ReportSettings describes where report images and the trigger come from.
type ReportSettings struct {
	SourceDir     string
	TriggerFile   string
	RegularSource string
	SpecialSource string
	SummaryFile   string // optional YAML record of the last run
}

// HygieneSettings controls the pre-run process and lock cleanup.
type HygieneSettings struct {
	KillProcesses bool
	SettleWait    time.Duration
}

// ViewerConfig holds the report viewer HTTP settings.
type ViewerConfig struct {
	Dir            string
	Listen         string
	Title          string
	DownloadPrefix string
	MaxUploadBytes int64
}

// WatchSettings controls the trigger file watcher.
type WatchSettings struct {
	Debounce time.Duration
}
