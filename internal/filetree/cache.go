// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package filetree

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/projchat/internal/model"
)

// Lister fetches a project's file listing. *api.Client satisfies it.
type Lister interface {
	ListFiles(ctx context.Context, projectID string, recursive bool) ([]model.Node, error)
}

// Row is one line of the rendered tree.
type Row struct {
	Node     model.Node
	Depth    int
	Expanded bool // only meaningful for directories
}

// =============================================================================
// CACHE
// =============================================================================

// Cache holds the fetched tree of one project together with the set of
// expanded directory paths.
//
// The cache is scoped to a single project at a time. Reset rescopes it and
// drops both the tree and the expansion state. Refresh replaces the tree but
// never touches the expansion state, so paths expanded before a refresh stay
// expanded if they still exist and become visible again if they reappear.
type Cache struct {
	mu sync.Mutex

	lister    Lister
	recursive bool
	logger    *zap.Logger

	project  string
	nodes    []model.Node
	loaded   bool
	expanded map[string]struct{}
}

// New creates an empty cache. A nil logger disables logging.
func New(lister Lister, recursive bool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		lister:    lister,
		recursive: recursive,
		logger:    logger,
		expanded:  make(map[string]struct{}),
	}
}

// Reset scopes the cache to projectID, dropping the tree and expansion state.
// An empty projectID leaves the cache unscoped.
func (c *Cache) Reset(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.project = projectID
	c.nodes = nil
	c.loaded = false
	c.expanded = make(map[string]struct{})
}

// Project returns the ID of the project the cache is scoped to.
func (c *Cache) Project() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project
}

// =============================================================================
// FETCHING
// =============================================================================

// Fetch lists projectID's tree without changing any cache state.
func (c *Cache) Fetch(ctx context.Context, projectID string) ([]model.Node, error) {
	nodes, err := c.lister.ListFiles(ctx, projectID, c.recursive)
	if err != nil {
		return nil, fmt.Errorf("list files for project %s: %w", projectID, err)
	}
	if err := model.ValidateTree(nodes); err != nil {
		// Traversal tolerates malformed trees, so keep going.
		c.logger.Warn("file tree failed validation",
			zap.String("project", projectID),
			zap.Error(err))
	}
	return nodes, nil
}

// Install replaces the cached tree. It fails with model.ErrStaleResponse when
// the cache has since been rescoped to another project.
func (c *Cache) Install(projectID string, nodes []model.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if projectID != c.project {
		return fmt.Errorf("tree for project %s, cache holds %s: %w", projectID, c.project, model.ErrStaleResponse)
	}
	c.nodes = nodes
	c.loaded = true
	return nil
}

// Refresh fetches and installs the tree for projectID. On failure the
// previous tree is left untouched.
func (c *Cache) Refresh(ctx context.Context, projectID string) ([]model.Node, error) {
	nodes, err := c.Fetch(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := c.Install(projectID, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// =============================================================================
// EXPANSION STATE
// =============================================================================

// Toggle flips path's membership in the expansion state and reports whether
// it is now expanded. Paths need not exist in the current tree.
func (c *Cache) Toggle(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.expanded[path]; ok {
		delete(c.expanded, path)
		return false
	}
	c.expanded[path] = struct{}{}
	return true
}

// IsExpanded reports whether path is in the expansion state.
func (c *Cache) IsExpanded(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.expanded[path]
	return ok
}

// Expanded returns the expanded paths in sorted order.
func (c *Cache) Expanded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.expanded))
	for p := range c.expanded {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Nodes returns the root-level nodes of the cached tree.
func (c *Cache) Nodes() []model.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Node(nil), c.nodes...)
}

// Loaded reports whether a tree has been installed since the last Reset.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Find returns the node at path, or nil.
func (c *Cache) Find(path string) model.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.FindByPath(c.nodes, path)
}

// Count returns the total number of nodes in the cached tree.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CountNodes(c.nodes)
}

// VisibleRows returns the rows a tree view shows: a depth-first pre-order
// walk that descends into a directory only when its path is expanded.
//
// The sequence is lazy and may be ranged over repeatedly. It works on a
// snapshot taken when VisibleRows is called. A path is never yielded twice,
// so the walk terminates even on a tree with duplicate paths or cycles.
func (c *Cache) VisibleRows() iter.Seq[Row] {
	c.mu.Lock()
	nodes := c.nodes
	expanded := make(map[string]struct{}, len(c.expanded))
	for p := range c.expanded {
		expanded[p] = struct{}{}
	}
	c.mu.Unlock()

	return func(yield func(Row) bool) {
		visited := make(map[string]struct{})
		walk(nodes, 0, expanded, visited, yield)
	}
}

// walk returns false once yield asks to stop.
func walk(nodes []model.Node, depth int, expanded, visited map[string]struct{}, yield func(Row) bool) bool {
	for _, n := range nodes {
		path := n.NodePath()
		if _, seen := visited[path]; seen {
			continue
		}
		visited[path] = struct{}{}

		switch v := n.(type) {
		case *model.File:
			if !yield(Row{Node: v, Depth: depth}) {
				return false
			}
		case *model.Directory:
			_, open := expanded[path]
			if !yield(Row{Node: v, Depth: depth, Expanded: open}) {
				return false
			}
			if open && !walk(v.Children, depth+1, expanded, visited, yield) {
				return false
			}
		}
	}
	return true
}
