// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by projchat packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// Display:
//   - StringWidth, TruncateWidth, PadRight: column-aware text fitting
//   - Indent: tree row indentation
//   - FormatSize: human-readable byte counts
//
// # Usage
//
//	row := util.Indent(depth) + node.Name
//	fmt.Println(util.TruncateWidth(row, 80))
package util
