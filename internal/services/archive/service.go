// Package archive copies report images into the publish directory.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
)

// ErrSourceNotFound is returned when the selected report image does not exist.
var ErrSourceNotFound = errors.New("source report not found")

// NameFormat is the date and hour prefix of archived names.
const NameFormat = "2006-01-02_15"

// Name returns the archived file name for a report of kind taken at.
// Names are unique per date, hour and kind; ext includes the dot.
func Name(at time.Time, kind models.Kind, ext string) string {
	return at.Format(NameFormat) + "_" + string(kind) + ext
}

// Service defines the interface for archiving report images.
type Service interface {
	Save(sel models.Selection, publishDir string) (string, error)
}

// Impl implements the archive Service interface.
type Impl struct {
	logger    zerolog.Logger
	sourceDir string
}

// New creates a new archive service reading from sourceDir.
func New(logger zerolog.Logger, sourceDir string) *Impl {
	return &Impl{logger: logger, sourceDir: sourceDir}
}

// Save copies the selected source image into publishDir and returns the
// archived path. Nothing is written when the source is missing.
func (s *Impl) Save(sel models.Selection, publishDir string) (string, error) {
	src := filepath.Join(s.sourceDir, sel.SourceFile)
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return "", fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, src)
	}

	if err := os.MkdirAll(publishDir, 0o755); err != nil {
		return "", fmt.Errorf("creating publish directory: %w", err)
	}

	dst := filepath.Join(publishDir, Name(sel.At, sel.Kind, filepath.Ext(sel.SourceFile)))
	if err := copyFile(src, dst, info); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("source", sel.SourceFile).
		Str("target", filepath.Base(dst)).
		Msg("report archived")

	return dst, nil
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, keeping the source mode and modification time.
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".reportsync-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copying report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("setting file times: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(dst), err)
	}
	return nil
}
