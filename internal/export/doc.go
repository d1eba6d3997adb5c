// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the current project's conversation to a file.
//
// Exports are explicit snapshots; nothing is read back.
//
// # Key Types
//
//   - Transcript: a project and its messages at export time
//   - Exporter: renders a Transcript in one format
//   - MarkdownExporter, JSONExporter: the supported formats
//
// # Usage
//
//	t := export.NewTranscript(project, mgr.Messages())
//	path, err := export.ToFile(t, export.ForPath(name), name)
package export
