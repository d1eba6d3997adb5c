// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the projchat components.
//
// This package defines the domain types exchanged with the collaborator and
// passed between the orchestration components. It has no behaviour beyond
// construction, decoding and validation.
//
// # Key Types
//
//   - Project: named, path-rooted unit of work
//   - Node: tagged union of *File and *Directory for a project's file tree
//   - Message: a single user or assistant turn, with its delivery outcome
//   - ProcessStatus: lifecycle snapshot of the external assistant process
//   - Agent: persona descriptor offered by the collaborator
//
// # Errors
//
// ErrNetwork, ErrNotReady, ErrBusy and ErrStaleResponse form the error
// taxonomy every component reports against. Use errors.Is to classify.
//
// # Usage
//
// Decode a listing and walk it with an exhaustive switch:
//
//	nodes, err := model.DecodeNodes(body)
//	for _, n := range nodes {
//	    switch v := n.(type) {
//	    case *model.Directory:
//	        fmt.Println("dir", v.Path, len(v.Children))
//	    case *model.File:
//	        fmt.Println("file", v.Path, v.Size)
//	    }
//	}
package model
