// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package process manages the lifecycle of the external assistant process.
//
// The process is started, polled and stopped through the collaborator; this
// package keeps the client-side state machine that decides whether messages
// may be sent.
//
// # Key Types
//
//   - Manager: owner of the ProcessStatus state machine
//   - Backend: the collaborator endpoints it drives, normally *api.Client
//   - Config: poll interval and start timeout
//
// # Usage
//
//	pm := process.NewManager(client, process.DefaultConfig(), logger)
//	st := pm.Start(ctx, "local", project.Path)
//	if st.State == model.StateStarting {
//	    st, err = pm.WaitReady(ctx)
//	}
//	reply, err := pm.Chat(ctx, "hello", project.Path)
package process
