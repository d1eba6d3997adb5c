// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before the
// trigger fires.
const DefaultDebounce = 500 * time.Millisecond

// ignoredDirs are never watched or scanned.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
	".idea":        true,
}

// Trigger is called once per burst of changes.
type Trigger func()

// =============================================================================
// FILE WATCHER INTERFACE
// =============================================================================

// FileWatcher is the interface for file watching implementations
type FileWatcher interface {
	// Watch starts watching for file changes
	Watch() error

	// Close stops watching and releases resources
	Close() error
}

// ShouldIgnore reports whether a directory with this base name is skipped.
func ShouldIgnore(name string) bool {
	return ignoredDirs[name]
}

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// FsnotifyWatcher implements FileWatcher using fsnotify. Changes are
// coalesced: the trigger fires once the tree has been quiet for the
// debounce period.
type FsnotifyWatcher struct {
	root     string
	trigger  Trigger
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu         sync.Mutex
	lastChange time.Time // zero when nothing is pending

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFsnotifyWatcher creates a new fsnotify-based watcher over root.
func NewFsnotifyWatcher(root string, debounce time.Duration, trigger Trigger, logger *zap.Logger) (*FsnotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FsnotifyWatcher{
		root:     root,
		trigger:  trigger,
		logger:   logger,
		watcher:  watcher,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for file changes
func (fw *FsnotifyWatcher) Watch() error {
	if _, err := os.Stat(fw.root); err != nil {
		return err
	}

	// Add root directory and all subdirectories
	fw.addRecursive(fw.root)

	fw.wg.Add(2)
	go fw.processEvents()
	go fw.processPending()
	return nil
}

// addRecursive adds a directory and all its subdirectories to the watch list
func (fw *FsnotifyWatcher) addRecursive(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ShouldIgnore(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.logger.Debug("cannot watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// processEvents records file system events as pending changes.
func (fw *FsnotifyWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if ShouldIgnore(filepath.Base(filepath.Dir(event.Name))) {
				continue
			}

			// New directories need their own watches.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !ShouldIgnore(info.Name()) {
					fw.addRecursive(event.Name)
				}
			}

			fw.mu.Lock()
			fw.lastChange = time.Now()
			fw.mu.Unlock()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// processPending fires the trigger once the debounce period has elapsed.
func (fw *FsnotifyWatcher) processPending() {
	defer fw.wg.Done()

	tick := fw.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case <-ticker.C:
			fw.mu.Lock()
			fire := !fw.lastChange.IsZero() && time.Since(fw.lastChange) >= fw.debounce
			if fire {
				fw.lastChange = time.Time{}
			}
			fw.mu.Unlock()

			if fire {
				fw.trigger()
			}
		}
	}
}

// Close stops watching and releases resources
func (fw *FsnotifyWatcher) Close() error {
	fw.cancel()
	var err error
	if fw.watcher != nil {
		err = fw.watcher.Close()
	}
	fw.wg.Wait()
	return err
}

// =============================================================================
// POLLING WATCHER (FALLBACK)
// =============================================================================

// PollingWatcher implements FileWatcher using periodic polling
type PollingWatcher struct {
	root     string
	trigger  Trigger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	files    map[string]time.Time // File path -> mod time
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewPollingWatcher creates a new polling-based watcher
func NewPollingWatcher(root string, interval time.Duration, trigger Trigger) *PollingWatcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &PollingWatcher{
		root:     root,
		trigger:  trigger,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		files:    make(map[string]time.Time),
	}
}

// Watch starts watching for file changes
func (pw *PollingWatcher) Watch() error {
	files, err := pw.scan()
	if err != nil {
		return err
	}
	pw.mu.Lock()
	pw.files = files
	pw.mu.Unlock()

	pw.wg.Add(1)
	go pw.poll()
	return nil
}

// scan records the modification time of every file under root.
func (pw *PollingWatcher) scan() (map[string]time.Time, error) {
	files := make(map[string]time.Time)

	err := filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == pw.root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != pw.root && ShouldIgnore(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[path] = info.ModTime()
		return nil
	})
	return files, err
}

// poll periodically checks for file changes
func (pw *PollingWatcher) poll() {
	defer pw.wg.Done()

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pw.ctx.Done():
			return

		case <-ticker.C:
			if pw.checkChanges() {
				pw.trigger()
			}
		}
	}
}

// checkChanges rescans and reports whether anything was added, modified or
// removed since the previous scan.
func (pw *PollingWatcher) checkChanges() bool {
	current, err := pw.scan()
	if err != nil {
		return false
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()
	old := pw.files
	pw.files = current

	if len(old) != len(current) {
		return true
	}
	for path, modTime := range current {
		if oldTime, exists := old[path]; !exists || !oldTime.Equal(modTime) {
			return true
		}
	}
	return false
}

// Close stops watching
func (pw *PollingWatcher) Close() error {
	pw.cancel()
	pw.wg.Wait()
	return nil
}

// =============================================================================
// WATCHER FACTORY
// =============================================================================

// Start watches root with fsnotify, falling back to polling every
// pollInterval when fsnotify is unavailable.
func Start(root string, debounce, pollInterval time.Duration, trigger Trigger, logger *zap.Logger) (FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := NewFsnotifyWatcher(root, debounce, trigger, logger)
	if err == nil {
		if err = fw.Watch(); err == nil {
			return fw, nil
		}
		fw.Close()
	}
	logger.Info("fsnotify unavailable, polling for changes",
		zap.String("root", root),
		zap.Error(err))

	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	pw := NewPollingWatcher(root, pollInterval, trigger)
	if err := pw.Watch(); err != nil {
		return nil, err
	}
	return pw, nil
}
