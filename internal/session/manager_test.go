// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/filetree"
	"github.com/jeranaias/projchat/internal/logging"
	"github.com/jeranaias/projchat/internal/mockserver"
	"github.com/jeranaias/projchat/internal/model"
	"github.com/jeranaias/projchat/internal/process"
)

var (
	alpha = model.Project{ID: "p1", Name: "alpha", Path: "/work/alpha"}
	beta  = model.Project{ID: "p2", Name: "beta", Path: "/work/beta"}
)

func alphaTree() []model.Node {
	return []model.Node{
		model.NewDirectory("src", "/work/alpha/src",
			model.NewFile("main.go", "/work/alpha/src/main.go", 120)),
		model.NewFile("go.mod", "/work/alpha/go.mod", 40),
	}
}

func betaTree() []model.Node {
	return []model.Node{
		model.NewFile("README.md", "/work/beta/README.md", 9),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Process = process.Config{PollInterval: time.Millisecond, StartTimeout: 5 * time.Second}
	cfg.WatchDebounce = 50 * time.Millisecond
	cfg.WatchPollInterval = 50 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, opts ...mockserver.Option) (*Manager, *mockserver.Server) {
	t.Helper()
	opts = append([]mockserver.Option{
		mockserver.WithProject(alpha, alphaTree()...),
		mockserver.WithProject(beta, betaTree()...),
	}, opts...)
	s := mockserver.New(opts...)
	t.Cleanup(s.Close)

	client := api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL, Timeout: 5 * time.Second})
	return NewManager(client, testConfig(), nil), s
}

func rowPaths(m *Manager) []string {
	var paths []string
	for row := range m.VisibleRows() {
		paths = append(paths, row.Node.NodePath())
	}
	return paths
}

// =============================================================================
// PROJECT SWITCH TESTS
// =============================================================================

func TestInit_SelectsFirstProject(t *testing.T) {
	m, s := newTestManager(t, mockserver.WithAgents(model.Agent{ID: "analyst", Name: "Mary"}))
	require.NoError(t, m.Init(context.Background()))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "p1", cur.ID)
	assert.Len(t, m.Projects(), 2)
	assert.Len(t, m.Agents(), 1)
	assert.Equal(t, []string{"/work/alpha/src", "/work/alpha/go.mod"}, rowPaths(m))
	assert.Equal(t, model.StateUninitialized, m.AssistantStatus().State)
	assert.Equal(t, 0, s.Count("start"))
}

func TestInit_AutoStart(t *testing.T) {
	s := mockserver.New(mockserver.WithProject(alpha, alphaTree()...))
	defer s.Close()

	cfg := testConfig()
	cfg.AutoStart = true
	cfg.Mode = "code"
	m := NewManager(api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL}), cfg, nil)

	require.NoError(t, m.Init(context.Background()))
	st := m.AssistantStatus()
	assert.Equal(t, model.StateReady, st.State)
	assert.Equal(t, "code", st.Mode)
	assert.Equal(t, "/work/alpha", s.AssistantWorkingDir())
}

func TestInit_NoProjects(t *testing.T) {
	s := mockserver.New()
	defer s.Close()
	m := NewManager(api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL}), testConfig(), nil)

	require.NoError(t, m.Init(context.Background()))
	_, ok := m.Current()
	assert.False(t, ok)

	_, err := m.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, model.ErrNoProject)
	assert.ErrorIs(t, m.RefreshFiles(context.Background()), model.ErrNoProject)
}

func TestSelectProject_EmptiesConversation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)

	for _, target := range []string{"p2", "p1", "beta"} {
		_, err := m.SendMessage(ctx, "hello")
		require.NoError(t, err)
		require.Len(t, m.Messages(), 2)

		require.NoError(t, m.SelectProject(ctx, target))
		assert.Empty(t, m.Messages(), "conversation must be empty after switching to %s", target)
	}
}

func TestSelectProject_ResetsExpansion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	assert.True(t, m.ToggleDir("/work/alpha/src"))
	assert.Contains(t, rowPaths(m), "/work/alpha/src/main.go")

	require.NoError(t, m.SelectProject(ctx, "p2"))
	require.NoError(t, m.SelectProject(ctx, "p1"))
	assert.False(t, m.Tree().IsExpanded("/work/alpha/src"))
	assert.NotContains(t, rowPaths(m), "/work/alpha/src/main.go")
}

func TestSelectProject_KeepsAssistantRunning(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)

	require.NoError(t, m.SelectProject(ctx, "p2"))
	assert.Equal(t, model.StateReady, m.AssistantStatus().State)
	assert.Equal(t, 0, s.Count("stop"))
}

func TestSelectProject_Unknown(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background()))

	err := m.SelectProject(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNoProject)

	cur, _ := m.Current()
	assert.Equal(t, "p1", cur.ID, "failed switch leaves current project alone")
}

func TestCreateProject_SelectsNewProject(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	p, err := m.CreateProject(ctx, "gamma", "/work/gamma")
	require.NoError(t, err)

	cur, _ := m.Current()
	assert.Equal(t, p.ID, cur.ID)
	assert.Len(t, m.Projects(), 3)
	assert.Equal(t, 1, m.Tree().Count())

	_, err = m.CreateProject(ctx, " ", "/x")
	assert.Error(t, err)
}

func TestDeleteProject_Current(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	require.NoError(t, m.DeleteProject(ctx, "p1"))
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "p2", cur.ID)
	assert.Equal(t, []string{"/work/beta/README.md"}, rowPaths(m))

	require.NoError(t, m.DeleteProject(ctx, "p2"))
	_, ok = m.Current()
	assert.False(t, ok)
	assert.Empty(t, rowPaths(m))
	assert.Empty(t, m.Projects())
}

func TestDeleteProject_ServerError(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	s.Close()

	err := m.DeleteProject(ctx, "p1")
	assert.True(t, api.IsNetworkFailure(err))
	assert.Len(t, m.Projects(), 2)
	cur, _ := m.Current()
	assert.Equal(t, "p1", cur.ID)
}

// =============================================================================
// REFRESH TESTS
// =============================================================================

func TestRefreshFiles_StaleResponseNeverInstalled(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var blockAlpha atomic.Bool

	m, s := newTestManager(t, mockserver.WithFilesHook(func(projectID string) {
		if projectID == "p1" && blockAlpha.Load() {
			entered <- struct{}{}
			<-release
		}
	}))
	logger, logs := logging.NewObserved(zapcore.DebugLevel)
	m.logger = logger

	ctx := context.Background()
	_, err := m.LoadProjects(ctx)
	require.NoError(t, err)

	blockAlpha.Store(true)
	done := make(chan error, 1)
	go func() { done <- m.SelectProject(ctx, "p1") }()
	<-entered

	// Switch away while alpha's listing is still outstanding.
	require.NoError(t, m.SelectProject(ctx, "p2"))
	assert.Equal(t, []string{"/work/beta/README.md"}, rowPaths(m))

	// Alpha's tree arrives late and is not an error.
	s.SetFiles("p1", alphaTree()...)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "p2", m.Tree().Project())
	assert.Equal(t, []string{"/work/beta/README.md"}, rowPaths(m))
	assert.Nil(t, m.Tree().Find("/work/alpha/go.mod"))
	assert.Equal(t, 1, logs.FilterMessage("discarding stale file tree").Len())
}

func TestRefreshFiles_RequestsDuringListingShareOneFollowUp(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	var block atomic.Bool

	m, s := newTestManager(t, mockserver.WithFilesHook(func(string) {
		if block.CompareAndSwap(true, false) {
			entered <- struct{}{}
			<-release
		}
	}))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	before := s.Count("files")

	block.Store(true)
	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = m.RefreshFiles(ctx)
	}()
	<-entered

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.RefreshFiles(ctx)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("refresh %d: %v", i, err)
		}
	}
	if got := s.Count("files") - before; got != 2 {
		t.Errorf("listings = %d, want 2 (in-flight plus one follow-up)", got)
	}
}

// listGate blocks the first armed file listing after it has read the tree.
type listGate struct {
	*api.Client
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *listGate) ListFiles(ctx context.Context, projectID string, recursive bool) ([]model.Node, error) {
	nodes, err := g.Client.ListFiles(ctx, projectID, recursive)
	if g.armed.CompareAndSwap(true, false) {
		g.entered <- struct{}{}
		<-g.release
	}
	return nodes, err
}

func TestSendMessage_RefreshSeesFilesWrittenByReply(t *testing.T) {
	var s *mockserver.Server
	s = mockserver.New(
		mockserver.WithProject(alpha, alphaTree()...),
		mockserver.WithChatHandler(func(message, _ string) (string, error) {
			s.SetFiles(alpha.ID, append(alphaTree(), model.NewFile("new.go", "/work/alpha/new.go", 10))...)
			return "wrote new.go", nil
		}),
	)
	t.Cleanup(s.Close)

	gate := &listGate{
		Client:  api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL, Timeout: 5 * time.Second}),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m := NewManager(gate, testConfig(), nil)
	ctx := context.Background()
	if err := m.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := m.StartAssistant(ctx, "local"); err != nil {
		t.Fatalf("StartAssistant: %v", err)
	}

	// A refresh, as from the watcher, reads the tree before the reply lands.
	gate.armed.Store(true)
	refreshDone := make(chan error, 1)
	go func() { refreshDone <- m.RefreshFiles(ctx) }()
	<-gate.entered

	sendDone := make(chan error, 1)
	go func() {
		_, err := m.SendMessage(ctx, "add a file")
		sendDone <- err
	}()
	time.Sleep(100 * time.Millisecond)
	close(gate.release)

	if err := <-refreshDone; err != nil {
		t.Fatalf("RefreshFiles: %v", err)
	}
	if err := <-sendDone; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if m.Tree().Find("/work/alpha/new.go") == nil {
		t.Error("file written during the send is missing from the tree")
	}
}

func TestRefreshFiles_ErrorKeepsTree(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	// Remove the project server-side so the listing 404s.
	client := m.backend
	require.NoError(t, client.DeleteProject(ctx, "p1"))

	err := m.RefreshFiles(ctx)
	assert.True(t, api.IsNetworkFailure(err))
	assert.Equal(t, 3, m.Tree().Count(), "previous tree kept")
}

func TestRefreshFiles_ExpansionSurvives(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	// Expand a directory that does not exist yet.
	m.ToggleDir("/work/alpha/docs")
	assert.NotContains(t, rowPaths(m), "/work/alpha/docs/guide.md")

	s.SetFiles("p1", append(alphaTree(),
		model.NewDirectory("docs", "/work/alpha/docs",
			model.NewFile("guide.md", "/work/alpha/docs/guide.md", 1)))...)
	require.NoError(t, m.RefreshFiles(ctx))
	assert.Contains(t, rowPaths(m), "/work/alpha/docs/guide.md")
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendMessage_BeforeAndAfterReady(t *testing.T) {
	m, s := newTestManager(t, mockserver.WithStartStatus("starting", 2))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	_, err := m.SendMessage(ctx, "hello")
	assert.ErrorIs(t, err, model.ErrNotReady)
	assert.Empty(t, m.Messages())

	st, err := m.StartAssistant(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, model.StateStarting, st.State)
	assert.Equal(t, "/work/alpha", s.AssistantWorkingDir())

	_, err = m.SendMessage(ctx, "hello")
	assert.ErrorIs(t, err, model.ErrNotReady)

	assert.Equal(t, model.StateStarting, m.PollAssistant(ctx).State)
	assert.Equal(t, model.StateReady, m.PollAssistant(ctx).State)

	filesBefore := s.Count("files")
	reply, err := m.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply.Content)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.DeliveryDelivered, msgs[0].Delivery)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, filesBefore+1, s.Count("files"), "tree refreshed after send")
}

func TestSendMessage_WaitAssistant(t *testing.T) {
	m, _ := newTestManager(t, mockserver.WithStartStatus("starting", 3))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)
	st, err := m.WaitAssistant(ctx)
	require.NoError(t, err)
	assert.True(t, st.Ready())
}

func TestSendMessage_FailureKeepsUserTurn(t *testing.T) {
	m, _ := newTestManager(t, mockserver.WithChatHandler(func(string, string) (string, error) {
		return "", errors.New("model overloaded")
	}))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)

	_, err = m.SendMessage(ctx, "hello")
	require.Error(t, err)
	assert.True(t, api.IsNetworkFailure(err))

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Failed())
	assert.Contains(t, msgs[0].Error, "model overloaded")
}

func TestSendMessage_RefreshFailureIsNotReturned(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)

	logger, logs := logging.NewObserved(zapcore.WarnLevel)
	m.logger = logger
	require.NoError(t, m.backend.DeleteProject(ctx, "p1"))

	_, err = m.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, m.Messages(), 2)
	assert.Equal(t, 1, logs.FilterMessage("refresh after send failed").Len())
}

func TestSendMessage_ReplyAfterSwitchDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m, _ := newTestManager(t, mockserver.WithChatHandler(func(msg, dir string) (string, error) {
		close(entered)
		<-release
		return "late reply", nil
	}))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.SendMessage(ctx, "hello")
		done <- err
	}()
	<-entered

	require.NoError(t, m.SelectProject(ctx, "p2"))
	close(release)

	assert.ErrorIs(t, <-done, model.ErrStaleResponse)
	assert.Empty(t, m.Messages())
}

// =============================================================================
// AGENT TESTS
// =============================================================================

func TestAskAgent_StreamsWithHistory(t *testing.T) {
	m, s := newTestManager(t, mockserver.WithAgents(model.Agent{ID: "analyst", Name: "Mary"}))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	_, err := m.StartAssistant(ctx, "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "hello")
	require.NoError(t, err)

	var chunks []string
	reply, err := m.AskAgent(ctx, "analyst", "what next?", func(c api.StreamChunk) {
		if !c.Done {
			chunks = append(chunks, c.Text)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "[analyst] what next?", reply)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, 1, s.Count("stream"))
	assert.Len(t, m.Messages(), 2, "agent questions do not touch the conversation")
}

func TestAskAgent_Errors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AskAgent(ctx, "analyst", "hi", nil)
	assert.ErrorIs(t, err, model.ErrNoProject)

	require.NoError(t, m.Init(ctx))
	_, err = m.AskAgent(ctx, "analyst", "   ", nil)
	assert.ErrorIs(t, err, model.ErrEmptyMessage)

	_, err = m.AskAgent(ctx, "nobody", "hi", nil)
	assert.True(t, api.IsNetworkFailure(err))
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatchLocal_RefreshesOnChange(t *testing.T) {
	dir := t.TempDir()
	local := model.Project{ID: "local", Name: "local", Path: dir}
	s := mockserver.New(mockserver.WithProject(local))
	defer s.Close()

	m := NewManager(api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL}), testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.WatchLocal(ctx))

	before := s.Count("files")
	s.SetFiles("local", model.NewFile("new.txt", filepath.Join(dir, "new.txt"), 1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return s.Count("files") > before && m.Tree().Count() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchLocal_NotLocal(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background()))

	err := m.WatchLocal(context.Background())
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRowsAreFiletreeRows(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Init(context.Background()))
	m.ToggleDir("/work/alpha/src")

	var rows []filetree.Row
	for r := range m.VisibleRows() {
		rows = append(rows, r)
	}
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[1].Depth)
	assert.True(t, rows[0].Expanded)
}
