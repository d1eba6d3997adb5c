// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/projchat/internal/model"
)

func sampleTranscript() *Transcript {
	user := model.NewUserMessage("what does main.go do?")
	user.Delivery = model.DeliveryDelivered
	failed := model.NewUserMessage("and now?")
	failed.Delivery = model.DeliveryFailed
	failed.Error = "assistant chat: boom"

	t := NewTranscript(
		model.Project{ID: "p1", Name: "alpha: web", Path: "/work/alpha"},
		[]model.Message{user, model.NewAssistantMessage("It starts the server."), failed},
	)
	t.ExportedAt = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	return t
}

func TestMarkdownExport(t *testing.T) {
	data, err := (&MarkdownExporter{}).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "---\nproject: \"alpha: web\"\n"))
	assert.Contains(t, out, "exported: 2025-03-01T12:30:00Z")
	assert.Contains(t, out, "### [You]\n\nwhat does main.go do?")
	assert.Contains(t, out, "### [Assistant]\n\nIt starts the server.")
	assert.Contains(t, out, "> Not delivered: assistant chat: boom")
	assert.Equal(t, 2, strings.Count(out, "\n---\n\n### "))
}

func TestMarkdownTimestamps(t *testing.T) {
	tr := sampleTranscript()
	data, err := (&MarkdownExporter{IncludeTimestamps: true}).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<sub>"+tr.Messages[0].Timestamp.Format("15:04:05")+"</sub>")
}

func TestJSONExportKeepsDelivery(t *testing.T) {
	data, err := (&JSONExporter{}).Export(sampleTranscript())
	require.NoError(t, err)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, "p1", decoded.Project.ID)
	assert.True(t, decoded.Messages[2].Failed())
}

func TestEmptyTranscript(t *testing.T) {
	empty := NewTranscript(model.Project{Name: "alpha"}, nil)

	_, err := (&MarkdownExporter{}).Export(empty)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	_, err = (&JSONExporter{}).Export(nil)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestForPath(t *testing.T) {
	assert.IsType(t, &JSONExporter{}, ForPath("chat.JSON"))
	assert.IsType(t, &MarkdownExporter{}, ForPath("chat.md"))
	assert.IsType(t, &MarkdownExporter{}, ForPath(""))
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "chat.json")

	written, err := ToFile(sampleTranscript(), ForPath(path), path)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDefaultFilename(t *testing.T) {
	name := DefaultFilename(sampleTranscript(), &MarkdownExporter{})
	assert.Equal(t, "conversation_alpha-_web_20250301_123000.md", name)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b:c d"))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("x", 80))), 50)
}
