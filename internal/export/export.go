// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/projchat/internal/model"
	"github.com/jeranaias/projchat/internal/util"
)

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("conversation has no messages")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is a conversation snapshot for one project.
type Transcript struct {
	Project    model.Project   `json:"project"`
	Messages   []model.Message `json:"messages"`
	ExportedAt time.Time       `json:"exportedAt"`
}

// NewTranscript snapshots messages for p.
func NewTranscript(p model.Project, messages []model.Message) *Transcript {
	return &Transcript{
		Project:    p,
		Messages:   append([]model.Message(nil), messages...),
		ExportedAt: time.Now(),
	}
}

func (t *Transcript) validate() error {
	if t == nil || len(t.Messages) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	// Export converts a transcript to the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the extension including the dot (e.g. ".md").
	FileExtension() string
}

// ForPath picks the exporter for a file name: JSON for ".json", Markdown
// otherwise.
func ForPath(path string) Exporter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &JSONExporter{}
	}
	return &MarkdownExporter{IncludeTimestamps: true}
}

// ToFile renders t and writes it to path with owner-only permissions. An
// empty path becomes a generated name in the working directory.
func ToFile(t *Transcript, exporter Exporter, path string) (string, error) {
	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if path == "" {
		path = DefaultFilename(t, exporter)
	}
	if err := util.AtomicWriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// DefaultFilename builds "conversation_<project>_<timestamp><ext>".
func DefaultFilename(t *Transcript, exporter Exporter) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.Project.Name),
		t.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and caps the length at 50 runes.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}
