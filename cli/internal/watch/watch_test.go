package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plist.csv")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0600))

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, 20*time.Millisecond, func() { calls.Add(1) })
	}()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestFileMissingDirectory(t *testing.T) {
	err := File(context.Background(), filepath.Join(t.TempDir(), "missing", "plist.csv"), DefaultDelay, func() {})
	assert.Error(t, err)
}

func TestDebouncerStopWaitsForRunningCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished, calls atomic.Int32

	d := NewDebouncer(time.Millisecond, func() {
		calls.Add(1)
		close(started)
		<-release
		finished.Store(1)
	})
	d.Trigger()
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.Equal(t, int32(1), finished.Load())

	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "no calls after Stop")
}
