package config

import (
	"testing"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_LoadReader_MinimalConfig(t *testing.T) {
	yaml := `
report:
  source_dir: "/data/images"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "/data/images", cfg.Report.SourceDir)
	// Check defaults
	assert.Equal(t, ".", cfg.Repository.Path)
	assert.Equal(t, "git", cfg.Repository.Executable)
	assert.Equal(t, "origin", cfg.Repository.Remote)
	assert.Empty(t, cfg.Repository.Branch)
	assert.Equal(t, "reports", cfg.Repository.PublishDir)
	assert.Equal(t, "upload_to_github.py", cfg.Repository.ConflictFile)
	assert.False(t, cfg.Repository.RestoreStash)
	assert.Equal(t, 30*time.Second, cfg.Repository.Timeout)
	assert.Equal(t, 3, cfg.Repository.LockRetries)
	assert.Equal(t, 3, cfg.Repository.PushRetries)
	assert.Equal(t, 2*time.Second, cfg.Repository.RetryDelay)
	assert.Equal(t, DefaultLockFiles, cfg.Repository.LockFiles)
	assert.Equal(t, "MuraDrava-AutoUpload", cfg.Repository.Identity.Name)
	assert.Equal(t, "mura.drava.auto@example.com", cfg.Repository.Identity.Email)
	assert.Equal(t, "Trigger.txt", cfg.Report.TriggerFile)
	assert.Equal(t, "redovni.jpeg", cfg.Report.RegularSource)
	assert.Equal(t, "posebni.jpeg", cfg.Report.SpecialSource)
	assert.True(t, cfg.Hygiene.KillProcesses)
	assert.Equal(t, time.Second, cfg.Hygiene.SettleWait)
	assert.Equal(t, "reports", cfg.Viewer.Dir)
	assert.Equal(t, ":8501", cfg.Viewer.Listen)
	assert.Equal(t, "MuraDrava_", cfg.Viewer.DownloadPrefix)
	assert.Equal(t, int64(20<<20), cfg.Viewer.MaxUploadBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Nil(t, cfg.Telegram)
}

func TestParser_LoadReader_FullConfig(t *testing.T) {
	yaml := `
repository:
  path: "/srv/report"
  executable: "/usr/bin/git"
  remote: "upstream"
  branch: "master"
  publish_dir: "archive/reports"
  conflict_file: "sync.sh"
  restore_stash: true
  timeout: 10s
  lock_retries: 5
  push_retries: 4
  retry_delay: 0s
  lock_files:
    - index.lock
  identity:
    name: "Report Bot"
    email: "bot@example.com"

report:
  source_dir: "/data/images"
  trigger_file: "/data/Trigger.txt"
  regular_source: "daily.png"
  special_source: "alert.png"
  summary_file: "/var/log/reportsync/last.yaml"

hygiene:
  kill_processes: false
  settle_wait: 0s

viewer:
  dir: "/srv/report/reports"
  listen: "127.0.0.1:9000"
  title: "Reports"
  download_prefix: ""
  max_upload_bytes: 1024

watch:
  debounce: 2s

telegram:
  bot_token: "123456:ABC"
  chat_id: "-100123456789"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)

	// Repository
	assert.Equal(t, "/srv/report", cfg.Repository.Path)
	assert.Equal(t, "/usr/bin/git", cfg.Repository.Executable)
	assert.Equal(t, "upstream", cfg.Repository.Remote)
	assert.Equal(t, "master", cfg.Repository.Branch)
	assert.Equal(t, "archive/reports", cfg.Repository.PublishDir)
	assert.Equal(t, "sync.sh", cfg.Repository.ConflictFile)
	assert.True(t, cfg.Repository.RestoreStash)
	assert.Equal(t, 10*time.Second, cfg.Repository.Timeout)
	assert.Equal(t, 5, cfg.Repository.LockRetries)
	assert.Equal(t, 4, cfg.Repository.PushRetries)
	assert.Equal(t, time.Duration(0), cfg.Repository.RetryDelay)
	assert.Equal(t, []string{"index.lock"}, cfg.Repository.LockFiles)
	assert.Equal(t, models.Identity{Name: "Report Bot", Email: "bot@example.com"}, cfg.Repository.Identity)

	// Report
	assert.Equal(t, "/data/Trigger.txt", cfg.Report.TriggerFile)
	assert.Equal(t, "daily.png", cfg.Report.RegularSource)
	assert.Equal(t, "alert.png", cfg.Report.SpecialSource)
	assert.Equal(t, "/var/log/reportsync/last.yaml", cfg.Report.SummaryFile)

	// Hygiene
	assert.False(t, cfg.Hygiene.KillProcesses)
	assert.Equal(t, time.Duration(0), cfg.Hygiene.SettleWait)

	// Viewer
	assert.Equal(t, "/srv/report/reports", cfg.Viewer.Dir)
	assert.Equal(t, "127.0.0.1:9000", cfg.Viewer.Listen)
	assert.Equal(t, "Reports", cfg.Viewer.Title)
	assert.Empty(t, cfg.Viewer.DownloadPrefix)
	assert.Equal(t, int64(1024), cfg.Viewer.MaxUploadBytes)

	// Watch
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)

	// Telegram
	require.NotNil(t, cfg.Telegram)
	assert.Equal(t, "123456:ABC", cfg.Telegram.BotToken)
	assert.Equal(t, "-100123456789", cfg.Telegram.ChatID)
}

func TestParser_LoadDefaults(t *testing.T) {
	cfg, err := NewParser().LoadDefaults()

	require.NoError(t, err)
	assert.Empty(t, cfg.Report.SourceDir)
	assert.Equal(t, "reports", cfg.Repository.PublishDir)
	assert.Error(t, Validate(cfg))
}

func TestParser_LoadReader_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_REPORT_DIR", "/env/images")
	t.Setenv("TEST_BOT_TOKEN", "env_token")

	yaml := `
report:
  source_dir: "${TEST_REPORT_DIR}"
telegram:
  bot_token: "$TEST_BOT_TOKEN"
  chat_id: "42"
`
	parser := NewParser()
	cfg, err := parser.LoadReader(yaml)

	require.NoError(t, err)
	assert.Equal(t, "/env/images", cfg.Report.SourceDir)
	assert.Equal(t, "env_token", cfg.Telegram.BotToken)
}

func TestParser_LoadReader_PublishDirOutsideRepository(t *testing.T) {
	for _, dir := range []string{"../reports", "/abs/reports", "reports/../.."} {
		t.Run(dir, func(t *testing.T) {
			yaml := "repository:\n  publish_dir: \"" + dir + "\"\n"
			_, err := NewParser().LoadReader(yaml)

			assert.Error(t, err)
			assert.Contains(t, err.Error(), "repository.publish_dir")
		})
	}
}

func TestParser_LoadReader_NegativeRetries(t *testing.T) {
	yaml := `
repository:
  lock_retries: -1
`
	_, err := NewParser().LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestParser_LoadReader_Telegram_MissingBotToken(t *testing.T) {
	yaml := `
report:
  source_dir: "/data"
telegram:
  chat_id: "-100123456789"
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.bot_token is required")
}

func TestParser_LoadReader_Telegram_MissingChatID(t *testing.T) {
	yaml := `
report:
  source_dir: "/data"
telegram:
  bot_token: "123456:ABC"
`
	parser := NewParser()
	_, err := parser.LoadReader(yaml)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.chat_id is required")
}

func TestParser_LoadFile_Missing(t *testing.T) {
	_, err := NewParser().LoadFile("/nonexistent/reportsync.yaml")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	valid := func() *models.Config {
		return &models.Config{
			Repository: models.RepositoryConfig{Path: ".", PublishDir: "reports"},
			Report: models.ReportSettings{
				SourceDir:     "/data",
				RegularSource: "redovni.jpeg",
				SpecialSource: "posebni.jpeg",
			},
		}
	}

	tests := []struct {
		name    string
		cfg     func() *models.Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			cfg:     func() *models.Config { return nil },
			wantErr: true,
			errMsg:  "configuration is nil",
		},
		{
			name: "missing source dir",
			cfg: func() *models.Config {
				c := valid()
				c.Report.SourceDir = ""
				return c
			},
			wantErr: true,
			errMsg:  "report.source_dir is required",
		},
		{
			name: "missing repository path",
			cfg: func() *models.Config {
				c := valid()
				c.Repository.Path = ""
				return c
			},
			wantErr: true,
			errMsg:  "repository.path is required",
		},
		{
			name: "escaping publish dir",
			cfg: func() *models.Config {
				c := valid()
				c.Repository.PublishDir = "../x"
				return c
			},
			wantErr: true,
			errMsg:  "must stay inside the repository",
		},
		{
			name: "missing source names",
			cfg: func() *models.Config {
				c := valid()
				c.Report.SpecialSource = ""
				return c
			},
			wantErr: true,
			errMsg:  "report.regular_source and report.special_source are required",
		},
		{
			name:    "valid config",
			cfg:     valid,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
