// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/projchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes the transcript as a Markdown document with YAML
// front matter.
type MarkdownExporter struct {
	// IncludeTimestamps adds the time of each turn to its heading.
	IncludeTimestamps bool
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "project: %s\n", escapeYAML(t.Project.Name))
	fmt.Fprintf(&sb, "path: %s\n", escapeYAML(t.Project.Path))
	fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
	fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
	sb.WriteString("generator: projchat\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Project.Name))

	for i, msg := range t.Messages {
		if e.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role), msg.Timestamp.Format("15:04:05"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if msg.Failed() {
			fmt.Fprintf(&sb, "> Not delivered: %s\n\n", msg.Error)
		}

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func roleLabel(role model.Role) string {
	if name := role.DisplayName(); name != "" {
		return "[" + name + "]"
	}
	return "[Unknown]"
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes s when it contains characters with YAML meaning.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
