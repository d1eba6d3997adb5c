// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ModifiedLayout is the timestamp layout the collaborator uses for the
// "modified" and "created" fields of a file listing.
const ModifiedLayout = "2006-01-02 15:04"

// =============================================================================
// NODE KIND
// =============================================================================

// NodeKind discriminates the two FileNode variants.
type NodeKind int

const (
	KindFile NodeKind = iota
	KindDirectory
)

// String returns the wire name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// =============================================================================
// NODE TYPES
// =============================================================================

// Node is a file or directory entry in a project tree. The only
// implementations are *File and *Directory; consumers switch on the concrete
// type.
type Node interface {
	Kind() NodeKind
	NodeName() string
	NodePath() string
	ModifiedAt() *time.Time

	isNode()
}

// Entry holds the fields common to both node variants.
type Entry struct {
	Name     string
	Path     string
	Modified *time.Time
}

// NodeName returns the base name of the entry.
func (e *Entry) NodeName() string { return e.Name }

// NodePath returns the path that keys the entry within its project.
func (e *Entry) NodePath() string { return e.Path }

// ModifiedAt returns the modification time, or nil when unknown.
func (e *Entry) ModifiedAt() *time.Time { return e.Modified }

// File is a leaf entry.
type File struct {
	Entry
	Size int64
}

// Kind implements Node.
func (*File) Kind() NodeKind { return KindFile }
func (*File) isNode()        {}

// Directory is an interior entry. Children is meaningful only when Loaded is
// true: a loaded directory with no children is empty, an unloaded one has not
// been listed yet.
type Directory struct {
	Entry
	Children []Node
	Loaded   bool
}

// Kind implements Node.
func (*Directory) Kind() NodeKind { return KindDirectory }
func (*Directory) isNode()        {}

// NewFile creates a file node.
func NewFile(name, path string, size int64) *File {
	return &File{Entry: Entry{Name: name, Path: path}, Size: size}
}

// NewDirectory creates a loaded directory node with the given children.
func NewDirectory(name, path string, children ...Node) *Directory {
	if children == nil {
		children = []Node{}
	}
	return &Directory{Entry: Entry{Name: name, Path: path}, Children: children, Loaded: true}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wireNode is the JSON shape of a listing entry.
type wireNode struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Path     string             `json:"path"`
	Size     int64              `json:"size"`
	Modified string             `json:"modified,omitempty"`
	Created  string             `json:"created,omitempty"`
	Children *[]json.RawMessage `json:"children,omitempty"`
}

// DecodeNodes decodes a JSON array of listing entries.
func DecodeNodes(data []byte) ([]Node, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode file listing: %w", err)
	}
	return decodeList(raw)
}

func decodeList(raw []json.RawMessage) ([]Node, error) {
	nodes := make([]Node, 0, len(raw))
	for _, r := range raw {
		n, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeNode(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode file node: %w", err)
	}

	entry := Entry{Name: w.Name, Path: w.Path, Modified: parseModified(w.Modified)}

	switch w.Type {
	case "directory":
		dir := &Directory{Entry: entry}
		if w.Children != nil {
			children, err := decodeList(*w.Children)
			if err != nil {
				return nil, err
			}
			dir.Children = children
			dir.Loaded = true
		}
		return dir, nil
	case "file":
		if w.Size < 0 {
			return nil, fmt.Errorf("file %q: negative size %d", w.Path, w.Size)
		}
		return &File{Entry: entry, Size: w.Size}, nil
	default:
		return nil, fmt.Errorf("file node %q: unknown type %q", w.Path, w.Type)
	}
}

// EncodeNodes renders nodes in the collaborator's wire format.
func EncodeNodes(nodes []Node) ([]byte, error) {
	return json.Marshal(toWire(nodes))
}

type wireOut struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
	Modified string     `json:"modified"`
	Children *[]wireOut `json:"children,omitempty"`
}

func toWire(nodes []Node) []wireOut {
	out := make([]wireOut, 0, len(nodes))
	for _, n := range nodes {
		w := wireOut{Name: n.NodeName(), Path: n.NodePath(), Type: n.Kind().String()}
		if m := n.ModifiedAt(); m != nil {
			w.Modified = m.Format(ModifiedLayout)
		}
		switch v := n.(type) {
		case *File:
			w.Size = v.Size
		case *Directory:
			// A loaded directory always carries children, even when empty.
			if v.Loaded {
				children := toWire(v.Children)
				w.Children = &children
			}
		}
		out = append(out, w)
	}
	return out
}

func parseModified(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(ModifiedLayout, s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// =============================================================================
// TREE INVARIANTS
// =============================================================================

// ValidateTree checks that paths are unique across the tree and that each
// child's path extends its parent's.
func ValidateTree(nodes []Node) error {
	seen := make(map[string]bool)
	var walk func(parent string, nodes []Node) error
	walk = func(parent string, nodes []Node) error {
		for _, n := range nodes {
			p := n.NodePath()
			if p == "" {
				return fmt.Errorf("node %q has an empty path", n.NodeName())
			}
			if seen[p] {
				return fmt.Errorf("duplicate path %q", p)
			}
			seen[p] = true
			if parent != "" && (!strings.HasPrefix(p, parent) || len(p) == len(parent)) {
				return fmt.Errorf("path %q does not extend parent %q", p, parent)
			}
			if d, ok := n.(*Directory); ok {
				if err := walk(p, d.Children); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk("", nodes)
}

// CountNodes counts all nodes in a forest.
func CountNodes(nodes []Node) int {
	count := 0
	for _, n := range nodes {
		count++
		if d, ok := n.(*Directory); ok {
			count += CountNodes(d.Children)
		}
	}
	return count
}

// FindByPath resolves a path in the tree (recursive).
func FindByPath(nodes []Node, path string) Node {
	for _, n := range nodes {
		if n.NodePath() == path {
			return n
		}
		if d, ok := n.(*Directory); ok {
			if found := FindByPath(d.Children, path); found != nil {
				return found
			}
		}
	}
	return nil
}
