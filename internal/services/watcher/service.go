// Package watcher runs the agent whenever the trigger file is written.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Handler is called once per settled burst of writes to the trigger file.
type Handler func(ctx context.Context)

// Watcher debounces filesystem events on a single file.
type Watcher struct {
	logger   zerolog.Logger
	path     string
	debounce time.Duration
	handler  Handler
	started  chan struct{}
	armed    sync.Once
}

// New creates a watcher for path.
func New(logger zerolog.Logger, path string, debounce time.Duration, handler Handler) *Watcher {
	return &Watcher{
		logger:   logger,
		path:     filepath.Clean(path),
		debounce: debounce,
		handler:  handler,
		started:  make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled. The parent directory is watched so the
// file may be created, replaced or rewritten. Handler calls never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.armed.Do(func() { close(w.started) })

	w.logger.Info().
		Str("file", w.path).
		Dur("debounce", w.debounce).
		Msg("watching trigger file")

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("trigger file changed")
			fire = time.After(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")

		case <-fire:
			fire = nil
			w.handler(ctx)
		}
	}
}
