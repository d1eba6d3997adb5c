// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for projchat output.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set.
// FORCE_COLOR overrides detection.

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTerminal reports whether r is a file attached to a terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width, or
// DefaultTerminalWidth when it cannot be determined.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR DETECTION
// =============================================================================

// ColorEnabled reports whether colored output should be produced.
func ColorEnabled() bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsStdoutTTY()
}

// GetColorProfile returns the termenv color profile for stdout.
func GetColorProfile() termenv.Profile {
	if !ColorEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// resolveGlamourStyle maps the configured style to a concrete glamour
// style name. "auto" asks the terminal for its background.
func resolveGlamourStyle(configured string) string {
	switch configured {
	case "dark", "light", "ascii", "notty":
		return configured
	}
	if !ColorEnabled() {
		return "notty"
	}
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
