// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch turns bursts of local file system changes into single
// refresh triggers.
//
// It is used when a project's root is on the local disk, so edits made
// outside the assistant still show up in the file tree.
//
// # Key Types
//
//   - FsnotifyWatcher: recursive fsnotify watch with debounce
//   - PollingWatcher: modification-time polling fallback
//
// # Usage
//
//	w, err := watch.Start(project.Path, watch.DefaultDebounce, 5*time.Second, func() {
//	    mgr.RefreshFiles(ctx)
//	}, logger)
//	defer w.Close()
package watch
