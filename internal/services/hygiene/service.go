// Package hygiene clears stale git processes and lock files before the
// agent touches the repository.
package hygiene

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for lock and process cleanup.
type Service interface {
	KillProcesses(ctx context.Context)
	ClearLocks(ctx context.Context) int
	Clean(ctx context.Context)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the hygiene Service interface.
type Impl struct {
	executor   CommandExecutor
	logger     zerolog.Logger
	gitDir     string
	lockFiles  []string
	kill       bool
	settleWait time.Duration
	goos       string
}

// New creates a new hygiene service for the configured repository.
func New(logger zerolog.Logger, repo models.RepositoryConfig, settings models.HygieneSettings) *Impl {
	return NewWithExecutor(logger, repo, settings, &DefaultExecutor{}, runtime.GOOS)
}

// NewWithExecutor creates a new hygiene service with a custom executor and
// target OS (for testing).
func NewWithExecutor(
	logger zerolog.Logger,
	repo models.RepositoryConfig,
	settings models.HygieneSettings,
	executor CommandExecutor,
	goos string,
) *Impl {
	return &Impl{
		executor:   executor,
		logger:     logger,
		gitDir:     filepath.Join(repo.Path, ".git"),
		lockFiles:  repo.LockFiles,
		kill:       settings.KillProcesses,
		settleWait: settings.SettleWait,
		goos:       goos,
	}
}

// KillProcesses terminates running git processes. Every failure is logged
// and ignored.
func (s *Impl) KillProcesses(ctx context.Context) {
	if !s.kill {
		return
	}

	list, kill := s.processCommands()
	out, err := s.executor.Execute(ctx, list[0], list[1:]...)
	if err != nil {
		// pgrep exits 1 when nothing matches.
		s.logger.Debug().Err(err).Str("command", list[0]).Msg("no git processes found")
		return
	}
	if !s.listed(string(out)) {
		return
	}

	s.logger.Info().Msg("terminating running git processes")
	if out, err := s.executor.Execute(ctx, kill[0], kill[1:]...); err != nil {
		s.logger.Debug().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("killing git processes failed")
	}
}

func (s *Impl) processCommands() (list, kill []string) {
	if s.goos == "windows" {
		return []string{"tasklist", "/FI", "IMAGENAME eq git.exe"},
			[]string{"taskkill", "/F", "/IM", "git.exe"}
	}
	return []string{"pgrep", "-x", "git"}, []string{"pkill", "-x", "git"}
}

func (s *Impl) listed(output string) bool {
	if s.goos == "windows" {
		return strings.Contains(strings.ToLower(output), "git.exe")
	}
	return strings.TrimSpace(output) != ""
}

// ClearLocks removes the configured lock files under .git and returns how
// many were deleted. A missing .git directory is a no-op.
func (s *Impl) ClearLocks(ctx context.Context) int {
	if _, err := os.Stat(s.gitDir); err != nil {
		s.logger.Debug().Str("dir", s.gitDir).Msg("no .git directory, skipping lock cleanup")
		return 0
	}

	removed := 0
	for _, name := range s.lockFiles {
		path := filepath.Join(s.gitDir, filepath.FromSlash(name))
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
			s.logger.Info().Str("file", path).Msg("removed stale lock file")
		case errors.Is(err, os.ErrNotExist):
		default:
			s.logger.Warn().Err(err).Str("file", path).Msg("failed to remove lock file")
		}
	}

	s.settle(ctx)
	return removed
}

// Clean kills git processes and then removes stale lock files.
func (s *Impl) Clean(ctx context.Context) {
	s.KillProcesses(ctx)
	s.ClearLocks(ctx)
}

func (s *Impl) settle(ctx context.Context) {
	if s.settleWait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.settleWait):
	}
}
