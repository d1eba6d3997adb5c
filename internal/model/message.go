// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the projchat components.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the two conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// DELIVERY STATE
// =============================================================================

// Delivery annotates a user turn with the outcome of its send.
type Delivery string

const (
	DeliveryPending   Delivery = "pending"
	DeliveryDelivered Delivery = "delivered"
	DeliveryFailed    Delivery = "failed"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Send outcome (user turns only; assistant turns are always delivered)
	Delivery Delivery `json:"delivery"`
	Error    string   `json:"error,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Delivery:  DeliveryDelivered,
	}
}

// NewUserMessage creates a user turn that has not been delivered yet.
func NewUserMessage(content string) Message {
	msg := NewMessage(RoleUser, content)
	msg.Delivery = DeliveryPending
	return msg
}

// NewAssistantMessage creates an assistant reply.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Failed reports whether this is a user turn whose send failed.
func (m Message) Failed() bool {
	return m.Delivery == DeliveryFailed
}

// HistoryEntry is the {role, content} pair the collaborator's /chat endpoint
// accepts as conversation history.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
