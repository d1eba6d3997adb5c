// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "github.com/jeranaias/projchat/internal/model"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// StartRequest is the body of POST /claude/start.
type StartRequest struct {
	Mode       string `json:"mode"`
	WorkingDir string `json:"workingDir,omitempty"`
}

// AssistantChatRequest is the body of POST /claude/chat.
type AssistantChatRequest struct {
	Message    string `json:"message"`
	WorkingDir string `json:"workingDir,omitempty"`
}

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	ProjectID string               `json:"projectId"`
	AgentID   string               `json:"agentId"`
	Message   string               `json:"message"`
	History   []model.HistoryEntry `json:"history"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AssistantStatus is the response of /claude/start and /claude/status.
// Status is one of "ready", "starting", "initializing", "error" or
// "stopped"; unknown values are treated as still starting.
type AssistantStatus struct {
	Status     string `json:"status"`
	Mode       string `json:"mode,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Diagnostic returns the most useful human-readable detail in the status.
func (s *AssistantStatus) Diagnostic() string {
	if s.Error != "" {
		return s.Error
	}
	return s.Message
}

// AssistantReply is the response of POST /claude/chat.
type AssistantReply struct {
	Reply string `json:"reply"`
}

// ChatResponse is the response of POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
	Usage Usage  `json:"usage"`
}

// Usage reports token consumption for a /chat turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// FileContent is the response of GET /files/read.
type FileContent struct {
	Name    string `json:"name"`
	Ext     string `json:"ext"`
	Content string `json:"content"`
}

// StreamChunk is one incremental piece of a /chat/stream reply.
type StreamChunk struct {
	Text string
	Done bool
}

// errorBody is the {error} payload the collaborator sends on failure.
type errorBody struct {
	Error string `json:"error"`
}
