// Package runner orchestrates one sync agent run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/muradrava/reportsync/internal/models"
	"github.com/muradrava/reportsync/internal/services/archive"
	"github.com/muradrava/reportsync/internal/services/git"
	"github.com/muradrava/reportsync/internal/services/hygiene"
	"github.com/muradrava/reportsync/internal/services/reconcile"
	"github.com/muradrava/reportsync/internal/services/telegram"
	"github.com/muradrava/reportsync/internal/services/trigger"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Fatal step errors.
var (
	ErrStageFailed  = errors.New("stage failed")
	ErrCommitFailed = errors.New("commit failed")
)

// Service defines the interface for the agent runner.
type Service interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	cfg          models.Config
	gitSvc       git.Service
	reconcileSvc reconcile.Service
	hygieneSvc   hygiene.Service
	triggerSvc   trigger.Service
	archiveSvc   archive.Service
	telegramSvc  telegram.Service
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a new runner service for cfg.
func New(logger zerolog.Logger, cfg models.Config) *Impl {
	gitSvc := git.New(logger, cfg.Repository)
	hygieneSvc := hygiene.New(logger, cfg.Repository, cfg.Hygiene)
	return &Impl{
		cfg:          cfg,
		gitSvc:       gitSvc,
		reconcileSvc: reconcile.New(logger, gitSvc, hygieneSvc, cfg.Repository),
		hygieneSvc:   hygieneSvc,
		triggerSvc:   trigger.New(logger, cfg.Report),
		archiveSvc:   archive.New(logger, cfg.Report.SourceDir),
		telegramSvc:  telegram.New(logger),
		logger:       logger,
		now:          time.Now,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.Config,
	gitSvc git.Service,
	reconcileSvc reconcile.Service,
	hygieneSvc hygiene.Service,
	triggerSvc trigger.Service,
	archiveSvc archive.Service,
	telegramSvc telegram.Service,
	now func() time.Time,
) *Impl {
	return &Impl{
		cfg:          cfg,
		gitSvc:       gitSvc,
		reconcileSvc: reconcileSvc,
		hygieneSvc:   hygieneSvc,
		triggerSvc:   triggerSvc,
		archiveSvc:   archiveSvc,
		telegramSvc:  telegramSvc,
		logger:       logger,
		now:          now,
	}
}

// Run executes the complete agent workflow and always returns a summary.
//
//nolint:gocognit,gocyclo // sequential multi-step workflow
func (s *Impl) Run(ctx context.Context) (summary *models.RunSummary, runErr error) {
	startTime := s.now()
	var failedStep string

	summary = &models.RunSummary{
		RunID:     uuid.NewString(),
		Status:    models.StateStart,
		StartTime: startTime,
	}
	logger := s.logger.With().Str("run_id", summary.RunID).Logger()

	logger.Info().
		Str("repository", s.cfg.Repository.Path).
		Str("source_dir", s.cfg.Report.SourceDir).
		Msg("starting agent run")

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic during %s: %v", failedStep, r)
			logger.Error().Str("step", failedStep).Interface("panic", r).Msg("agent run panicked")
		}

		summary.Duration = s.now().Sub(startTime)
		if runErr != nil {
			summary.Status = models.StateFailed
			summary.FailedStep = failedStep
			summary.Error = runErr.Error()
		}

		s.writeSummary(logger, summary)

		// Send notification if configured
		if s.cfg.Telegram != nil {
			s.sendNotification(ctx, logger, *summary)
		}
	}()

	// Step 1: Process and lock hygiene
	failedStep = "hygiene"
	s.hygieneSvc.Clean(ctx)

	// Step 2: Remotes and identity
	failedStep = "configure"
	s.reconcileSvc.Configure(ctx)
	summary.Status = models.StateConfigured

	// Step 3: Trigger
	failedStep = "trigger"
	sel, err := s.triggerSvc.Resolve(startTime)
	if err != nil {
		logger.Warn().Err(err).Msg("trigger unreadable, continuing with default")
	}
	summary.Kind = sel.Kind
	summary.Date = sel.Date
	summary.SourceFile = sel.SourceFile

	// Step 4: Archive copy
	failedStep = "archive"
	publishDir := filepath.Join(s.cfg.Repository.Path, filepath.FromSlash(s.cfg.Repository.PublishDir))
	archived, err := s.archiveSvc.Save(sel, publishDir)
	if err != nil {
		runErr = fmt.Errorf("archive failed: %w", err)
		logger.Error().Err(err).Msg("failed to archive report")
		return summary, runErr
	}
	relPath := path.Join(filepath.ToSlash(s.cfg.Repository.PublishDir), filepath.Base(archived))
	summary.ArchivedFile = relPath

	// Step 5: Branch and upstream
	failedStep = "branch"
	branch := s.reconcileSvc.ResolveBranch(ctx)
	s.reconcileSvc.EnsureUpstream(ctx, branch)
	summary.Branch = branch

	// Step 6: Sync with the remote (never fatal)
	failedStep = "sync"
	summary.SyncState = s.reconcileSvc.Sync(ctx, branch)

	// Step 7: Stage
	failedStep = "stage"
	if res := s.reconcileSvc.Do(ctx, func(ctx context.Context) *models.GitResult {
		return s.gitSvc.Add(ctx, relPath)
	}); !res.OK() {
		runErr = fmt.Errorf("%w: %w", ErrStageFailed, res.Error)
		logger.Error().Err(res.Error).Str("file", relPath).Msg("failed to stage report")
		return summary, runErr
	}
	summary.Status = models.StateStaged

	// Step 8: Commit
	failedStep = "commit"
	staged, res := s.gitSvc.StagedFiles(ctx)
	if !res.OK() {
		runErr = fmt.Errorf("%w: %w", ErrCommitFailed, res.Error)
		logger.Error().Err(res.Error).Msg("failed to inspect staged changes")
		return summary, runErr
	}

	if len(staged) == 0 {
		summary.CommitState = models.StateSkipped
		logger.Info().Msg("report unchanged, nothing to commit")

		ahead, res := s.gitSvc.AheadCount(ctx, s.cfg.Repository.Remote, branch)
		switch {
		case !res.OK():
			logger.Warn().Err(res.Error).Msg("cannot compare with remote, pushing anyway")
		case ahead == 0:
			summary.Status = models.StateSkipped
			failedStep = ""
			logger.Info().Dur("duration", s.now().Sub(startTime)).Msg("agent run completed, nothing to publish")
			return summary, nil
		default:
			logger.Info().Int("ahead", ahead).Msg("publishing earlier unpushed commits")
		}
	} else {
		message := fmt.Sprintf("Add %s report for %s", sel.Kind, sel.Date)
		if res := s.reconcileSvc.Do(ctx, func(ctx context.Context) *models.GitResult {
			return s.gitSvc.Commit(ctx, message)
		}); !res.OK() {
			runErr = fmt.Errorf("%w: %w", ErrCommitFailed, res.Error)
			logger.Error().Err(res.Error).Msg("failed to commit report")
			return summary, runErr
		}

		if head, res := s.gitSvc.Head(ctx); res.OK() {
			summary.Commit = head
		}
		summary.CommitState = models.StateCommitted
		summary.Status = models.StateCommitted

		logger.Info().
			Str("commit", summary.Commit).
			Str("message", message).
			Msg("report committed")
	}

	// Step 9: Publish
	failedStep = "publish"
	if _, err := s.reconcileSvc.Publish(ctx, branch); err != nil {
		runErr = err
		logger.Error().Err(err).Str("branch", branch).Msg("failed to publish report")
		return summary, runErr
	}
	summary.Status = models.StatePublished

	// Success - clear failedStep
	failedStep = ""
	logger.Info().
		Str("file", summary.ArchivedFile).
		Str("sync", string(summary.SyncState)).
		Dur("duration", s.now().Sub(startTime)).
		Msg("agent run completed successfully")

	return summary, nil
}

// writeSummary records the run in report.summary_file, if configured.
func (s *Impl) writeSummary(logger zerolog.Logger, summary *models.RunSummary) {
	file := s.cfg.Report.SummaryFile
	if file == "" {
		return
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode run summary")
		return
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		logger.Error().Err(err).Str("file", file).Msg("failed to create summary directory")
		return
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		logger.Error().Err(err).Str("file", file).Msg("failed to write run summary")
		return
	}
	logger.Debug().Str("file", file).Msg("run summary written")
}

func (s *Impl) sendNotification(ctx context.Context, logger zerolog.Logger, summary models.RunSummary) {
	result, err := s.telegramSvc.SendRunSummary(ctx, *s.cfg.Telegram, summary)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}
