// Package reconcile brings the local working tree in line with the remote
// and publishes local commits, recovering from the failures an unattended
// agent runs into: held locks, stray local edits, divergence and rejected
// pushes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/muradrava/reportsync/internal/services/git"
	"github.com/muradrava/reportsync/internal/services/hygiene"
	"github.com/rs/zerolog"
)

// ErrPublishFailed is returned when the push could not be completed.
var ErrPublishFailed = errors.New("publish failed")

// StashMessage labels the stash entry created when local edits block a pull.
const StashMessage = "reportsync auto-stash"

// Op is a single git invocation that may be retried.
type Op func(ctx context.Context) *models.GitResult

// Service defines the interface for repository reconciliation.
type Service interface {
	Do(ctx context.Context, op Op) *models.GitResult
	Configure(ctx context.Context)
	ResolveBranch(ctx context.Context) string
	EnsureUpstream(ctx context.Context, branch string)
	Sync(ctx context.Context, branch string) models.State
	Publish(ctx context.Context, branch string) (*models.GitResult, error)
}

// Impl implements the reconcile Service interface.
type Impl struct {
	git     git.Service
	hygiene hygiene.Service
	logger  zerolog.Logger
	cfg     models.RepositoryConfig
}

// New creates a new reconcile service.
func New(logger zerolog.Logger, gitSvc git.Service, hygieneSvc hygiene.Service, cfg models.RepositoryConfig) *Impl {
	return &Impl{
		git:     gitSvc,
		hygiene: hygieneSvc,
		logger:  logger,
		cfg:     cfg,
	}
}

// Do runs op, retrying while it reports contention. Between attempts git
// processes are killed, locks are cleared and the retry delay is observed.
// At most repository.lock_retries attempts are made.
func (s *Impl) Do(ctx context.Context, op Op) *models.GitResult {
	attempts := s.cfg.LockRetries
	if attempts < 1 {
		attempts = 1
	}

	var res *models.GitResult
	for attempt := 1; attempt <= attempts; attempt++ {
		res = op(ctx)
		res.Attempts = attempt
		if res.Outcome != models.OutcomeContention || attempt == attempts || ctx.Err() != nil {
			break
		}

		s.logger.Warn().
			Strs("args", res.Args).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("repository busy, retrying")

		s.hygiene.Clean(ctx)
		if !wait(ctx, s.cfg.RetryDelay) {
			break
		}
	}

	return res
}

// Configure logs the remotes and makes sure commits carry an author
// identity. Nothing here is fatal.
func (s *Impl) Configure(ctx context.Context) {
	if res := s.git.Remotes(ctx); res.OK() {
		for _, line := range strings.Split(strings.TrimSpace(res.Output), "\n") {
			if line != "" {
				s.logger.Info().Str("remote", line).Msg("git remote")
			}
		}
	} else {
		s.logger.Warn().Err(res.Error).Msg("failed to list remotes")
	}

	identity := []struct{ key, value string }{
		{"user.name", s.cfg.Identity.Name},
		{"user.email", s.cfg.Identity.Email},
	}
	for _, id := range identity {
		current, res := s.git.GetConfig(ctx, id.key)
		if res.OK() && current != "" {
			s.logger.Debug().Str("key", id.key).Str("value", current).Msg("git identity present")
			continue
		}
		if res := s.git.SetConfig(ctx, id.key, id.value); !res.OK() {
			s.logger.Warn().Err(res.Error).Str("key", id.key).Msg("failed to set git identity")
			continue
		}
		s.logger.Info().Str("key", id.key).Str("value", id.value).Msg("git identity set")
	}
}

// ResolveBranch returns the configured branch or detects main/master from
// the remote-tracking branches, defaulting to main.
func (s *Impl) ResolveBranch(ctx context.Context) string {
	if s.cfg.Branch != "" {
		return s.cfg.Branch
	}

	branches, res := s.git.RemoteBranches(ctx)
	if !res.OK() {
		s.logger.Warn().Err(res.Error).Msg("failed to list remote branches, assuming main")
		return "main"
	}

	hasMaster := false
	for _, b := range branches {
		switch b {
		case s.cfg.Remote + "/main":
			return "main"
		case s.cfg.Remote + "/master":
			hasMaster = true
		}
	}
	if hasMaster {
		return "master"
	}
	return "main"
}

// EnsureUpstream points the current branch at remote/branch when it has no
// upstream yet. Failures are logged only.
func (s *Impl) EnsureUpstream(ctx context.Context, branch string) {
	local, res := s.git.CurrentBranch(ctx)
	if !res.OK() || local == "" || local == "HEAD" {
		s.logger.Warn().Err(res.Error).Str("branch", local).Msg("cannot determine current branch")
		return
	}

	if upstream, res := s.git.Upstream(ctx, local); res.OK() && upstream != "" {
		s.logger.Debug().Str("branch", local).Str("upstream", upstream).Msg("upstream configured")
		return
	}

	if res := s.git.SetUpstream(ctx, s.cfg.Remote, branch, local); !res.OK() {
		s.logger.Warn().Err(res.Error).Str("branch", local).Msg("failed to set upstream")
		return
	}
	s.logger.Info().
		Str("branch", local).
		Str("upstream", s.cfg.Remote+"/"+branch).
		Msg("upstream set")
}

// Sync pulls remote/branch into the working tree. Local edits are stashed,
// the conflict file is discarded on divergence; whatever still fails leaves
// the run DEGRADED so that publishing is attempted anyway.
func (s *Impl) Sync(ctx context.Context, branch string) models.State {
	res := s.pull(ctx, branch, false)

	stashed := false
	if res.Outcome == models.OutcomeLocalChanges {
		s.logger.Warn().Msg("local changes block the pull, stashing")
		stashed = s.stash(ctx)
		if stashed {
			res = s.pull(ctx, branch, false)
		}
	}

	if res.Outcome == models.OutcomeLocalChanges || res.Outcome == models.OutcomeDivergence {
		res = s.discardConflictFile(ctx, branch, res)
	}

	if !res.OK() {
		s.logger.Warn().
			Err(res.Error).
			Str("outcome", res.Outcome.String()).
			Int("attempts", res.Attempts).
			Msg("sync degraded, continuing without remote changes")
		return models.StateDegraded
	}

	if stashed && s.cfg.RestoreStash {
		if pop := s.git.StashPop(ctx); !pop.OK() {
			s.logger.Warn().Err(pop.Error).Msg("failed to restore stashed changes")
		}
	}

	s.logger.Info().Str("branch", branch).Msg("working tree synced")
	return models.StateSynced
}

func (s *Impl) pull(ctx context.Context, branch string, rebase bool) *models.GitResult {
	return s.Do(ctx, func(ctx context.Context) *models.GitResult {
		return s.git.Pull(ctx, s.cfg.Remote, branch, rebase)
	})
}

// stash reports whether an entry was actually created; git exits zero when
// there is nothing to save. The publish directory is never stashed: it holds
// the report archived for this run.
func (s *Impl) stash(ctx context.Context) bool {
	var exclude []string
	if dir := strings.Trim(path.Clean(filepath.ToSlash(s.cfg.PublishDir)), "/"); dir != "" && dir != "." {
		exclude = append(exclude, dir)
	}
	res := s.Do(ctx, func(ctx context.Context) *models.GitResult {
		return s.git.Stash(ctx, StashMessage, exclude...)
	})
	if !res.OK() {
		s.logger.Warn().Err(res.Error).Msg("stash failed")
		return false
	}
	return !strings.Contains(strings.ToLower(res.Output), "no local changes to save")
}

func (s *Impl) discardConflictFile(ctx context.Context, branch string, prev *models.GitResult) *models.GitResult {
	if prev.Outcome == models.OutcomeDivergence {
		// A failed merge leaves conflict markers; get back to HEAD first.
		if res := s.git.AbortMerge(ctx); !res.OK() {
			s.logger.Debug().Err(res.Error).Msg("no merge to abort")
		}
	}

	if s.cfg.ConflictFile == "" {
		return prev
	}

	s.logger.Warn().Str("file", s.cfg.ConflictFile).Msg("discarding local changes to conflict file")
	if res := s.git.CheckoutFile(ctx, s.cfg.ConflictFile); !res.OK() {
		s.logger.Warn().Err(res.Error).Str("file", s.cfg.ConflictFile).Msg("failed to discard conflict file")
	}

	return s.pull(ctx, branch, false)
}

// Publish pushes branch to the remote. repository.push_retries is the total
// number of push attempts; a rejected push is rebased onto the remote before
// the next one. On failure the local commit is left in place for the next
// run.
func (s *Impl) Publish(ctx context.Context, branch string) (*models.GitResult, error) {
	attempts := s.cfg.PushRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		res := s.Do(ctx, func(ctx context.Context) *models.GitResult {
			return s.git.Push(ctx, s.cfg.Remote, branch)
		})
		if res.OK() {
			s.logger.Info().Str("remote", s.cfg.Remote).Str("branch", branch).Msg("pushed")
			return res, nil
		}

		if res.Outcome != models.OutcomeRejected || attempt >= attempts || ctx.Err() != nil {
			return res, fmt.Errorf("%w: %w", ErrPublishFailed, res.Error)
		}

		s.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("push rejected, rebasing onto remote")

		if rebase := s.pull(ctx, branch, true); !rebase.OK() {
			if abort := s.git.AbortRebase(ctx); !abort.OK() {
				s.logger.Debug().Err(abort.Error).Msg("no rebase to abort")
			}
			return rebase, fmt.Errorf("%w: rebase onto %s/%s: %w", ErrPublishFailed, s.cfg.Remote, branch, rebase.Error)
		}
	}
}

// wait sleeps for d and reports whether ctx is still live afterwards.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
