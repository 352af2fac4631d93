// Package watch re-runs a callback when a journal file is rewritten.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zhaobenny/aobatop/internal/logger"
)

// DefaultDelay is how long a file must stay quiet before a change is reported
const DefaultDelay = 300 * time.Millisecond

// Debouncer runs fn once after delay has passed without another Trigger
type Debouncer struct {
	delay      time.Duration
	fn         func()
	mu         sync.Mutex
	generation int
	stopped    bool
	running    sync.WaitGroup
}

// NewDebouncer creates a debouncer with the specified delay
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn, resetting the timer if already pending
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	time.AfterFunc(d.delay, func() {
		d.flush(gen)
	})
}

// Stop drops any pending call and waits for a call already in progress.
// fn never runs after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.generation++
	d.mu.Unlock()

	d.running.Wait()
}

func (d *Debouncer) flush(generation int) {
	d.mu.Lock()
	if d.stopped || d.generation != generation {
		// Superseded by a later Trigger, or stopped
		d.mu.Unlock()
		return
	}
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn()
}

// File calls onChange after every write to path until ctx is done.
// The parent directory is watched so editors that replace the file are seen too.
func File(ctx context.Context, path string, delay time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	debouncer := NewDebouncer(delay, onChange)
	defer debouncer.Stop()

	base := filepath.Base(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Debug("journal changed", "path", event.Name, "op", event.Op.String())
				debouncer.Trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}
