// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for projchat commands.

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/projchat/internal/model"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	// ValueStyle is used for regular values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle is used for ready states and confirmations
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// ErrorStyle is used for errors and failed states
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// WarningStyle is used for transient states and warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for secondary text
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// PromptStyle is used for the chat prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// DirStyle is used for directory rows in the tree
	DirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	// UserStyle and AssistantStyle label conversation turns
	UserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	AssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// stateStyle picks the style for an assistant state.
func stateStyle(state model.ProcessState) lipgloss.Style {
	switch state {
	case model.StateReady:
		return SuccessStyle
	case model.StateFailed:
		return ErrorStyle
	case model.StateStarting:
		return WarningStyle
	default:
		return DimStyle
	}
}

// field renders a "label value" line.
func field(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
