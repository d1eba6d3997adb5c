// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package filetree caches a project's file tree and tracks which directories
// are expanded.
//
// # Key Types
//
//   - Cache: the tree plus its expansion state, scoped to one project
//   - Row: a node and its depth in the visible, flattened tree
//   - Lister: the file listing source, normally *api.Client
//
// # Usage
//
//	cache := filetree.New(client, true, logger)
//	cache.Reset(project.ID)
//	if _, err := cache.Refresh(ctx, project.ID); err != nil {
//	    return err
//	}
//	cache.Toggle(project.Path + "/src")
//	for row := range cache.VisibleRows() {
//	    fmt.Printf("%s%s\n", strings.Repeat("  ", row.Depth), row.Node.NodeName())
//	}
package filetree
