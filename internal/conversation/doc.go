// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the transcript of the active project's chat.
//
// # Key Types
//
//   - Log: ordered user/assistant turns with serialized, optimistic sends
//   - Assistant: the process turns are sent to
//
// # Usage
//
//	log := conversation.New(processManager, logger)
//	reply, err := log.SendTurn(ctx, "hello", project.Path)
//	switch {
//	case errors.Is(err, model.ErrNotReady):
//	    // start the assistant first
//	case errors.Is(err, model.ErrBusy):
//	    // wait for the previous reply
//	}
package conversation
