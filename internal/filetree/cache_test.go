// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package filetree

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/projchat/internal/model"
)

// fakeLister serves canned trees keyed by project ID.
type fakeLister struct {
	mu    sync.Mutex
	trees map[string][]model.Node
	err   error
	calls int
}

func (f *fakeLister) ListFiles(ctx context.Context, projectID string, recursive bool) ([]model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trees[projectID], nil
}

func sampleTree() []model.Node {
	return []model.Node{
		model.NewDirectory("src", "/p/src",
			model.NewFile("main.go", "/p/src/main.go", 10),
			model.NewDirectory("pkg", "/p/src/pkg",
				model.NewFile("util.go", "/p/src/pkg/util.go", 5),
			),
		),
		model.NewFile("README.md", "/p/README.md", 3),
	}
}

func rowPaths(c *Cache) []string {
	var paths []string
	for row := range c.VisibleRows() {
		paths = append(paths, strings.Repeat(".", row.Depth)+row.Node.NodePath())
	}
	return paths
}

func newLoadedCache(t *testing.T) (*Cache, *fakeLister) {
	t.Helper()
	l := &fakeLister{trees: map[string][]model.Node{"p": sampleTree()}}
	c := New(l, true, nil)
	c.Reset("p")
	_, err := c.Refresh(context.Background(), "p")
	require.NoError(t, err)
	return c, l
}

// =============================================================================
// VISIBLE ROWS TESTS
// =============================================================================

func TestVisibleRows_CollapsedByDefault(t *testing.T) {
	c, _ := newLoadedCache(t)
	assert.Equal(t, []string{"/p/src", "/p/README.md"}, rowPaths(c))
}

func TestVisibleRows_Expansion(t *testing.T) {
	c, _ := newLoadedCache(t)

	c.Toggle("/p/src")
	assert.Equal(t, []string{"/p/src", "./p/src/main.go", "./p/src/pkg", "/p/README.md"}, rowPaths(c))

	c.Toggle("/p/src/pkg")
	assert.Equal(t, []string{
		"/p/src", "./p/src/main.go", "./p/src/pkg", "../p/src/pkg/util.go", "/p/README.md",
	}, rowPaths(c))
}

func TestVisibleRows_NoRowUnderCollapsedAncestor(t *testing.T) {
	c, _ := newLoadedCache(t)

	// Inner directory expanded, outer collapsed: nothing under /p/src shows.
	c.Toggle("/p/src/pkg")
	for row := range c.VisibleRows() {
		if strings.HasPrefix(row.Node.NodePath(), "/p/src/") {
			t.Errorf("row %q visible under collapsed /p/src", row.Node.NodePath())
		}
	}
}

func TestVisibleRows_EmptyTree(t *testing.T) {
	c := New(&fakeLister{}, true, nil)
	c.Reset("p")
	_, err := c.Refresh(context.Background(), "p")
	require.NoError(t, err)

	assert.Empty(t, rowPaths(c))
	assert.True(t, c.Loaded())
}

func TestVisibleRows_Restartable(t *testing.T) {
	c, _ := newLoadedCache(t)
	c.Toggle("/p/src")

	seq := c.VisibleRows()
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// Early break stops the walk.
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestVisibleRows_MalformedTreeTerminates(t *testing.T) {
	loop := model.NewDirectory("a", "/a")
	loop.Children = []model.Node{loop, model.NewFile("a", "/a", 1)}

	l := &fakeLister{trees: map[string][]model.Node{"p": {loop, loop}}}
	c := New(l, true, nil)
	c.Reset("p")
	_, err := c.Refresh(context.Background(), "p")
	require.NoError(t, err)
	c.Toggle("/a")

	assert.Equal(t, []string{"/a"}, rowPaths(c))
}

// =============================================================================
// TOGGLE TESTS
// =============================================================================

func TestToggle_Involution(t *testing.T) {
	c, _ := newLoadedCache(t)
	c.Toggle("/p/src/pkg")
	before := c.Expanded()

	for _, path := range []string{"/p/src", "/p/src/pkg", "/nowhere"} {
		c.Toggle(path)
		c.Toggle(path)
		assert.Equal(t, before, c.Expanded(), "double toggle of %s", path)
	}
}

func TestToggle_AbsentPathBecomesVisibleAfterRefresh(t *testing.T) {
	c, l := newLoadedCache(t)

	assert.True(t, c.Toggle("/p/docs"))
	assert.Equal(t, []string{"/p/src", "/p/README.md"}, rowPaths(c), "inert while absent")

	l.trees["p"] = append(sampleTree(),
		model.NewDirectory("docs", "/p/docs", model.NewFile("guide.md", "/p/docs/guide.md", 1)))
	_, err := c.Refresh(context.Background(), "p")
	require.NoError(t, err)

	assert.Contains(t, rowPaths(c), "./p/docs/guide.md")
}

// =============================================================================
// REFRESH / RESET TESTS
// =============================================================================

func TestRefresh_FailureKeepsPreviousTree(t *testing.T) {
	c, l := newLoadedCache(t)
	c.Toggle("/p/src")
	before := rowPaths(c)

	l.err = errors.New("boom")
	_, err := c.Refresh(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, before, rowPaths(c))
}

func TestRefresh_DoesNotTouchExpansion(t *testing.T) {
	c, _ := newLoadedCache(t)
	c.Toggle("/p/src")
	_, err := c.Refresh(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, c.IsExpanded("/p/src"))
}

func TestInstall_StaleProject(t *testing.T) {
	c, _ := newLoadedCache(t)

	nodes, err := c.Fetch(context.Background(), "p")
	require.NoError(t, err)

	c.Reset("q")
	err = c.Install("p", nodes)
	assert.True(t, errors.Is(err, model.ErrStaleResponse))
	assert.Empty(t, c.Nodes())
	assert.False(t, c.Loaded())
}

func TestReset_ClearsTreeAndExpansion(t *testing.T) {
	c, _ := newLoadedCache(t)
	c.Toggle("/p/src")

	c.Reset("q")
	assert.Equal(t, "q", c.Project())
	assert.Empty(t, c.Expanded())
	assert.Empty(t, c.Nodes())
	assert.Nil(t, c.Find("/p/src"))
}

func TestFindAndCount(t *testing.T) {
	c, _ := newLoadedCache(t)
	assert.Equal(t, 5, c.Count())
	n := c.Find("/p/src/pkg/util.go")
	require.NotNil(t, n)
	assert.Equal(t, model.KindFile, n.Kind())
}
