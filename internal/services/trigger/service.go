// Package trigger reads the trigger file that selects which report to publish.
package trigger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
)

// DateFormat is the layout of Selection.Date.
const DateFormat = "2006-01-02"

// Parse maps trigger file contents to a Trigger. Surrounding whitespace and
// quotes are ignored and matching is case-insensitive; anything else is DAILY.
func Parse(content string) models.Trigger {
	s := strings.TrimSpace(content)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)

	if strings.EqualFold(s, string(models.TriggerAlert)) {
		return models.TriggerAlert
	}
	return models.TriggerDaily
}

// Service defines the interface for trigger resolution.
type Service interface {
	Resolve(now time.Time) (models.Selection, error)
}

// Resolver turns the trigger file into a Selection.
type Resolver struct {
	logger   zerolog.Logger
	settings models.ReportSettings
}

// New creates a new trigger resolver.
func New(logger zerolog.Logger, settings models.ReportSettings) *Resolver {
	return &Resolver{logger: logger, settings: settings}
}

// Select builds the Selection for trigger t at time now.
func (r *Resolver) Select(t models.Trigger, now time.Time) models.Selection {
	kind := t.Kind()
	source := r.settings.RegularSource
	if kind == models.KindSpecial {
		source = r.settings.SpecialSource
	}
	return models.Selection{
		Trigger:    t,
		Kind:       kind,
		SourceFile: source,
		Date:       now.Format(DateFormat),
		At:         now,
	}
}

// Resolve reads the configured trigger file. A missing or unreadable file
// yields the DAILY selection; the read error is returned for logging only.
func (r *Resolver) Resolve(now time.Time) (models.Selection, error) {
	path := r.settings.TriggerFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().Str("file", path).Msg("trigger file not found, using DAILY")
			return r.Select(models.TriggerDaily, now), nil
		}
		r.logger.Warn().Err(err).Str("file", path).Msg("failed to read trigger file, using DAILY")
		return r.Select(models.TriggerDaily, now), fmt.Errorf("reading trigger file: %w", err)
	}

	sel := r.Select(Parse(string(data)), now)
	r.logger.Info().
		Str("trigger", string(sel.Trigger)).
		Str("kind", string(sel.Kind)).
		Str("source", sel.SourceFile).
		Str("date", sel.Date).
		Msg("trigger resolved")

	return sel, nil
}
