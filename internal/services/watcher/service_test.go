package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// start runs w until the test ends and waits for the watch to be armed.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	select {
	case <-w.started:
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
}

func TestRun_DebouncesBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Trigger.txt")

	var calls atomic.Int32
	w := New(testLogger(), path, 200*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})
	start(t, w)

	for _, content := range []string{"DAILY", "ALERT", "ALERT\n"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Trigger.txt")

	var calls atomic.Int32
	w := New(testLogger(), path, 50*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})
	start(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "redovni.jpeg"), []byte("img"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("ALERT"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestRun_MissingDirectory(t *testing.T) {
	w := New(testLogger(), filepath.Join(t.TempDir(), "missing", "Trigger.txt"), time.Millisecond, func(ctx context.Context) {})

	err := w.Run(context.Background())

	assert.Error(t, err)
}

func TestRun_CanRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Trigger.txt")
	w := New(testLogger(), path, time.Millisecond, func(ctx context.Context) {})

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NotPanics(t, func() {
			assert.NoError(t, w.Run(ctx))
		})
	}
}
