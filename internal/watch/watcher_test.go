// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsnotifyWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32

	w, err := NewFsnotifyWatcher(dir, 100*time.Millisecond, func() { fired.Add(1) }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// No further changes, no further triggers.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestFsnotifyWatcher_NewSubdirectoryWatched(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32

	w, err := NewFsnotifyWatcher(dir, 50*time.Millisecond, func() { fired.Add(1) }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	before := fired.Load()
	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.go"), []byte("package x"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestFsnotifyWatcher_MissingRoot(t *testing.T) {
	w, err := NewFsnotifyWatcher(filepath.Join(t.TempDir(), "nope"), 0, func() {}, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Error(t, w.Watch())
}

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	pw := NewPollingWatcher(dir, time.Hour, func() {})
	require.NoError(t, pw.Watch())
	defer pw.Close()

	assert.False(t, pw.checkChanges(), "no changes yet")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("y"), 0o644))
	assert.True(t, pw.checkChanges(), "file added")
	assert.False(t, pw.checkChanges())

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	assert.True(t, pw.checkChanges(), "file removed")
}

func TestPollingWatcher_SkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))

	pw := NewPollingWatcher(dir, time.Hour, func() {})
	require.NoError(t, pw.Watch())
	defer pw.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "objects", "x"), []byte("x"), 0o644))
	assert.False(t, pw.checkChanges())
}

func TestStart_MissingRootFails(t *testing.T) {
	_, err := Start(filepath.Join(t.TempDir(), "missing"), 0, time.Second, func() {}, nil)
	assert.Error(t, err)
}
