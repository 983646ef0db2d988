package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func alertSelection(at time.Time) models.Selection {
	return models.Selection{
		Trigger:    models.TriggerAlert,
		Kind:       models.KindSpecial,
		SourceFile: "posebni.jpeg",
		Date:       at.Format("2006-01-02"),
		At:         at,
	}
}

func TestName(t *testing.T) {
	at := time.Date(2025, 9, 10, 13, 59, 59, 0, time.UTC)

	assert.Equal(t, "2025-09-10_13_special.jpeg", Name(at, models.KindSpecial, ".jpeg"))
	assert.Equal(t, "2025-09-10_13_regular.png", Name(at, models.KindRegular, ".png"))
	assert.Equal(t, "2025-09-10_06_regular.jpeg", Name(at.Add(-7*time.Hour), models.KindRegular, ".jpeg"))
}

func TestName_SameHourIsIdempotent(t *testing.T) {
	a := time.Date(2025, 9, 10, 13, 0, 0, 0, time.UTC)
	b := time.Date(2025, 9, 10, 13, 45, 12, 0, time.UTC)

	assert.Equal(t, Name(a, models.KindRegular, ".jpeg"), Name(b, models.KindRegular, ".jpeg"))
	assert.NotEqual(t, Name(a, models.KindRegular, ".jpeg"), Name(a, models.KindSpecial, ".jpeg"))
}

func TestSave(t *testing.T) {
	src := t.TempDir()
	publish := filepath.Join(t.TempDir(), "reports")
	mtime := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, os.WriteFile(filepath.Join(src, "posebni.jpeg"), []byte("jpeg-bytes"), 0o600))
	require.NoError(t, os.Chtimes(filepath.Join(src, "posebni.jpeg"), mtime, mtime))

	at := time.Date(2025, 9, 10, 13, 0, 0, 0, time.Local)
	path, err := New(testLogger(), src).Save(alertSelection(at), publish)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(publish, "2025-09-10_13_special.jpeg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	entries, err := os.ReadDir(publish)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSave_OverwritesSameHour(t *testing.T) {
	src := t.TempDir()
	publish := t.TempDir()
	svc := New(testLogger(), src)
	at := time.Date(2025, 9, 10, 13, 0, 0, 0, time.Local)

	require.NoError(t, os.WriteFile(filepath.Join(src, "posebni.jpeg"), []byte("first"), 0o644))
	_, err := svc.Save(alertSelection(at), publish)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(src, "posebni.jpeg"), []byte("second"), 0o644))
	path, err := svc.Save(alertSelection(at.Add(20*time.Minute)), publish)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(publish)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSave_SourceNotFound(t *testing.T) {
	publish := filepath.Join(t.TempDir(), "reports")

	_, err := New(testLogger(), t.TempDir()).Save(alertSelection(time.Now()), publish)

	require.ErrorIs(t, err, ErrSourceNotFound)
	assert.NoDirExists(t, publish)
}
