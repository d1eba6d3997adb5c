// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown, source and tree rendering for terminal output.

package cli

import (
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/filetree"
	"github.com/jeranaias/projchat/internal/model"
	"github.com/jeranaias/projchat/internal/util"
)

// Renderer formats replies, files and trees for one output stream.
type Renderer struct {
	markdown  *glamour.TermRenderer
	color     bool
	treeWidth int
}

// NewRenderer creates a renderer. style is a glamour style name or "auto";
// a style of "notty" or "ascii" also disables syntax highlighting.
func NewRenderer(style string, wrap, treeWidth int) *Renderer {
	resolved := resolveGlamourStyle(style)
	r := &Renderer{
		color:     resolved != "notty" && resolved != "ascii",
		treeWidth: treeWidth,
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(resolved),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		r.markdown = md
	}
	return r
}

// Markdown renders text as markdown, falling back to the raw text.
func (r *Renderer) Markdown(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return out
}

// File renders a file for display: markdown through glamour, other text
// highlighted by chroma.
func (r *Renderer) File(fc *api.FileContent) string {
	ext := fc.Ext
	if ext == "" {
		ext = filepath.Ext(fc.Name)
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "md" || ext == "markdown" {
		return r.Markdown(fc.Content)
	}
	if !r.color {
		return fc.Content
	}
	return highlightCode(fc.Content, fc.Name)
}

// highlightCode applies syntax highlighting using chroma, choosing the lexer
// by file name and then by content.
func highlightCode(code, filename string) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// Tree writes one line per visible row. Directories carry an expand marker
// and files their size.
func (r *Renderer) Tree(w io.Writer, rows iter.Seq[filetree.Row]) int {
	n := 0
	for row := range rows {
		fmt.Fprintln(w, r.treeLine(row))
		n++
	}
	return n
}

func (r *Renderer) treeLine(row filetree.Row) string {
	indent := util.Indent(row.Depth)
	width := r.treeWidth
	if width <= 0 {
		width = DefaultTerminalWidth
	}

	switch n := row.Node.(type) {
	case *model.Directory:
		marker := "▸ "
		if row.Expanded {
			marker = "▾ "
		}
		name := util.TruncateWidth(indent+marker+n.Name+"/", width)
		return DirStyle.Render(name)
	case *model.File:
		size := " " + util.FormatSize(n.Size)
		name := util.TruncateWidth(indent+"  "+n.Name, max(width-util.StringWidth(size), 1))
		return name + DimStyle.Render(size)
	default:
		return util.TruncateWidth(indent+row.Node.NodeName(), width)
	}
}

// Message renders a conversation turn.
func (r *Renderer) Message(m model.Message) string {
	switch m.Role {
	case model.RoleUser:
		line := UserStyle.Render(m.Role.DisplayName()+":") + " " + m.Content
		if m.Failed() {
			line += " " + ErrorStyle.Render("(failed: "+m.Error+")")
		}
		return line
	default:
		return AssistantStyle.Render(m.Role.DisplayName()+":") + "\n" + r.Markdown(m.Content)
	}
}

// Status renders an assistant status line.
func (r *Renderer) Status(st model.ProcessStatus) string {
	line := stateStyle(st.State).Render(st.Label())
	if st.Mode != "" {
		line += DimStyle.Render(" mode=" + st.Mode)
	}
	if st.WorkingDir != "" {
		line += DimStyle.Render(" dir=" + st.WorkingDir)
	}
	return line
}

// printProjects writes one line per project, marking currentID.
func printProjects(w io.Writer, projects []model.Project, currentID string) {
	if len(projects) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No projects. Create one with: projects create <name> <path>"))
		return
	}
	for _, p := range projects {
		marker := "  "
		if p.ID == currentID {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(w, "%s%s %s %s\n", marker, ValueStyle.Render(p.Name), DimStyle.Render(p.ID), p.Path)
	}
}

// printAgents writes one line per agent.
func printAgents(w io.Writer, agents []model.Agent) {
	if len(agents) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No agents available."))
		return
	}
	for _, ag := range agents {
		name := ag.Name
		if ag.Icon != "" {
			name = ag.Icon + " " + name
		}
		line := util.PadRight(ag.ID, 16) + ValueStyle.Render(name)
		if ag.Title != "" {
			line += DimStyle.Render(" - " + ag.Title)
		}
		fmt.Fprintln(w, line)
	}
}
