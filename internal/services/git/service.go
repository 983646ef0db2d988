// Package git wraps the git command line used by the sync agent.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for git operations.
type Service interface {
	Run(ctx context.Context, args ...string) *models.GitResult
	Remotes(ctx context.Context) *models.GitResult
	GetConfig(ctx context.Context, key string) (string, *models.GitResult)
	SetConfig(ctx context.Context, key, value string) *models.GitResult
	RemoteBranches(ctx context.Context) ([]string, *models.GitResult)
	CurrentBranch(ctx context.Context) (string, *models.GitResult)
	Upstream(ctx context.Context, local string) (string, *models.GitResult)
	SetUpstream(ctx context.Context, remote, branch, local string) *models.GitResult
	Pull(ctx context.Context, remote, branch string, rebase bool) *models.GitResult
	AbortMerge(ctx context.Context) *models.GitResult
	AbortRebase(ctx context.Context) *models.GitResult
	Stash(ctx context.Context, message string, exclude ...string) *models.GitResult
	StashPop(ctx context.Context) *models.GitResult
	CheckoutFile(ctx context.Context, path string) *models.GitResult
	Add(ctx context.Context, path string) *models.GitResult
	StagedFiles(ctx context.Context) ([]string, *models.GitResult)
	Commit(ctx context.Context, message string) *models.GitResult
	Head(ctx context.Context) (string, *models.GitResult)
	AheadCount(ctx context.Context, remote, branch string) (int, *models.GitResult)
	Push(ctx context.Context, remote, branch string) *models.GitResult
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command in dir with additional environment variables and
// returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Error is returned in GitResult.Error for failed invocations.
type Error struct {
	Args    []string
	Outcome models.Outcome
	Output  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("git %s failed (%s)", strings.Join(e.Args, " "), e.Outcome)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg = fmt.Sprintf("%s: %s", msg, out)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Impl implements the Service interface.
type Impl struct {
	executor   CommandExecutor
	logger     zerolog.Logger
	executable string
	dir        string
	timeout    time.Duration
}

// New creates a new git service for the configured working tree.
func New(logger zerolog.Logger, cfg models.RepositoryConfig) *Impl {
	return NewWithExecutor(logger, cfg, &DefaultExecutor{})
}

// NewWithExecutor creates a new git service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, cfg models.RepositoryConfig, executor CommandExecutor) *Impl {
	executable := cfg.Executable
	if executable == "" {
		executable = "git"
	}
	return &Impl{
		executor:   executor,
		logger:     logger,
		executable: executable,
		dir:        cfg.Path,
		timeout:    cfg.Timeout,
	}
}

// Run executes one git command with the configured timeout and classifies it.
func (s *Impl) Run(ctx context.Context, args ...string) *models.GitResult {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := s.executor.Execute(runCtx, s.dir, []string{"GIT_TERMINAL_PROMPT=0"}, s.executable, args...)

	timedOut := err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	result := &models.GitResult{
		Args:     args,
		Output:   string(output),
		Outcome:  Classify(string(output), err, timedOut),
		Attempts: 1,
		Duration: time.Since(start),
	}

	if result.Outcome != models.OutcomeSuccess {
		if timedOut {
			err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
		}
		result.Error = &Error{Args: args, Outcome: result.Outcome, Output: result.Output, Err: err}
	}

	s.logger.Debug().
		Strs("args", args).
		Str("outcome", result.Outcome.String()).
		Dur("duration", result.Duration).
		Msg("git command finished")

	return result
}

// Remotes lists the configured remotes (git remote -v).
func (s *Impl) Remotes(ctx context.Context) *models.GitResult {
	return s.Run(ctx, "remote", "-v")
}

// GetConfig reads a config value. An unset key is reported as a failed result.
func (s *Impl) GetConfig(ctx context.Context, key string) (string, *models.GitResult) {
	res := s.Run(ctx, "config", key)
	return strings.TrimSpace(res.Output), res
}

// SetConfig writes a repository-local config value.
func (s *Impl) SetConfig(ctx context.Context, key, value string) *models.GitResult {
	return s.Run(ctx, "config", key, value)
}

// RemoteBranches returns the remote-tracking branches (git branch -r).
func (s *Impl) RemoteBranches(ctx context.Context) ([]string, *models.GitResult) {
	res := s.Run(ctx, "branch", "-r")
	if !res.OK() {
		return nil, res
	}

	var branches []string
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// "origin/HEAD -> origin/main"
		if i := strings.Index(line, " -> "); i >= 0 {
			line = line[:i]
		}
		branches = append(branches, line)
	}
	return branches, res
}

// CurrentBranch returns the checked out branch name.
func (s *Impl) CurrentBranch(ctx context.Context) (string, *models.GitResult) {
	res := s.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(res.Output), res
}

// Upstream returns the upstream ref tracked by local, if any.
func (s *Impl) Upstream(ctx context.Context, local string) (string, *models.GitResult) {
	res := s.Run(ctx, "rev-parse", "--abbrev-ref", local+"@{upstream}")
	if !res.OK() {
		return "", res
	}
	return strings.TrimSpace(res.Output), res
}

// SetUpstream makes local track remote/branch.
func (s *Impl) SetUpstream(ctx context.Context, remote, branch, local string) *models.GitResult {
	return s.Run(ctx, "branch", "--set-upstream-to", remote+"/"+branch, local)
}

// Pull fetches and merges remote/branch, or rebases onto it.
func (s *Impl) Pull(ctx context.Context, remote, branch string, rebase bool) *models.GitResult {
	mode := "--no-rebase"
	if rebase {
		mode = "--rebase"
	}
	return s.Run(ctx, "pull", mode, remote, branch)
}

// AbortMerge abandons a conflicted merge left behind by Pull.
func (s *Impl) AbortMerge(ctx context.Context) *models.GitResult {
	return s.Run(ctx, "merge", "--abort")
}

// AbortRebase abandons a conflicted rebase and returns to the pre-rebase branch.
func (s *Impl) AbortRebase(ctx context.Context) *models.GitResult {
	return s.Run(ctx, "rebase", "--abort")
}

// Stash sets aside local modifications, leaving paths under exclude in the
// working tree.
func (s *Impl) Stash(ctx context.Context, message string, exclude ...string) *models.GitResult {
	args := []string{"stash", "push", "-m", message}
	if len(exclude) > 0 {
		args = append(args, "--", ".")
		for _, p := range exclude {
			args = append(args, ":(exclude)"+p)
		}
	}
	return s.Run(ctx, args...)
}

// StashPop restores the most recent stash entry.
func (s *Impl) StashPop(ctx context.Context) *models.GitResult {
	return s.Run(ctx, "stash", "pop")
}

// CheckoutFile discards local modifications to path.
func (s *Impl) CheckoutFile(ctx context.Context, path string) *models.GitResult {
	return s.Run(ctx, "checkout", "HEAD", "--", path)
}

// Add stages a repository-relative path.
func (s *Impl) Add(ctx context.Context, path string) *models.GitResult {
	return s.Run(ctx, "add", "--", path)
}

// StagedFiles lists the paths in the index that differ from HEAD.
func (s *Impl) StagedFiles(ctx context.Context) ([]string, *models.GitResult) {
	res := s.Run(ctx, "diff", "--cached", "--name-only")
	if !res.OK() {
		return nil, res
	}
	return splitLines(res.Output), res
}

// Commit records the staged changes.
func (s *Impl) Commit(ctx context.Context, message string) *models.GitResult {
	return s.Run(ctx, "commit", "-m", message)
}

// Head returns the current commit hash.
func (s *Impl) Head(ctx context.Context) (string, *models.GitResult) {
	res := s.Run(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(res.Output), res
}

// AheadCount returns how many local commits are not on remote/branch.
func (s *Impl) AheadCount(ctx context.Context, remote, branch string) (int, *models.GitResult) {
	res := s.Run(ctx, "rev-list", "--count", remote+"/"+branch+"..HEAD")
	if !res.OK() {
		return 0, res
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Output))
	if err != nil {
		res.Outcome = models.OutcomeFailure
		res.Error = &Error{Args: res.Args, Outcome: res.Outcome, Output: res.Output, Err: err}
		return 0, res
	}
	return n, res
}

// Push publishes branch to remote.
func (s *Impl) Push(ctx context.Context, remote, branch string) *models.GitResult {
	return s.Run(ctx, "push", remote, branch)
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
