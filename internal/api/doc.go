// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the project chat collaborator.
//
// The collaborator owns projects, file listings, the external assistant
// process and agent chat. This package maps each of its /api endpoints onto
// one Client method and turns every failure into a *ClientError.
//
// # Key Types
//
//   - Client: HTTP client for the collaborator API
//   - ClientError: typed failure; matches model.ErrNetwork via errors.Is
//   - AssistantStatus: response of /claude/start and /claude/status
//   - StreamReader: server-sent event parser for /chat/stream
//
// # Usage
//
// Create a client and list a project's files:
//
//	client := api.NewClientWithConfig(&api.ClientConfig{BaseURL: "http://127.0.0.1:5001"})
//	nodes, err := client.ListFiles(ctx, projectID, true)
//	if err != nil {
//	    fmt.Println(api.Describe(err))
//	}
//
// For streaming agent replies:
//
//	reply, err := client.ChatStream(ctx, api.ChatRequest{
//	    ProjectID: projectID,
//	    AgentID:   "analyst",
//	    Message:   "Summarise the README",
//	}, func(chunk api.StreamChunk) {
//	    fmt.Print(chunk.Text)
//	})
package api
