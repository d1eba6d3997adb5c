// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties the active project to its file tree, conversation and
// assistant process.
//
// Manager is the only writer of the current project. Switching projects
// clears the conversation and the tree's expansion state and fetches the new
// tree; the assistant process keeps running. File tree responses that arrive
// after a switch are dropped, never installed.
//
// # Key Types
//
//   - Manager: the session orchestrator
//   - Backend: the collaborator endpoints the manager calls (*api.Client)
//   - Config: assistant mode, auto start, tree listing and watch settings
//
// # Usage
//
//	mgr := session.NewManager(client, session.DefaultConfig(), logger)
//	if err := mgr.Init(ctx); err != nil {
//	    return err
//	}
//	mgr.StartAssistant(ctx, "")
//	if _, err := mgr.WaitAssistant(ctx); err != nil {
//	    return err
//	}
//	reply, err := mgr.SendMessage(ctx, "summarize the README")
package session
