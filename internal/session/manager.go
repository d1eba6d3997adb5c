// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties the active project to its file tree, conversation and
// assistant process.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/conversation"
	"github.com/jeranaias/projchat/internal/filetree"
	"github.com/jeranaias/projchat/internal/metrics"
	"github.com/jeranaias/projchat/internal/model"
	"github.com/jeranaias/projchat/internal/process"
	"github.com/jeranaias/projchat/internal/watch"
)

// Backend is everything the session needs from the collaborator server.
// *api.Client satisfies it.
type Backend interface {
	filetree.Lister
	process.Backend

	ListAgents(ctx context.Context) ([]model.Agent, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	CreateProject(ctx context.Context, name, path string) (*model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ReadFile(ctx context.Context, path string) (*api.FileContent, error)
	ChatStream(ctx context.Context, req api.ChatRequest, callback api.StreamCallback) (string, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	// Mode is the assistant mode used when StartAssistant gets none (default: "chat")
	Mode string

	// AutoStart starts the assistant for the first project during Init
	AutoStart bool

	// Recursive requests whole trees instead of one level (default: true in DefaultConfig)
	Recursive bool

	// WatchDebounce coalesces local filesystem events (default: 500ms)
	WatchDebounce time.Duration

	// WatchPollInterval is used when fsnotify is unavailable (default: 5s)
	WatchPollInterval time.Duration

	// Process configures assistant status polling
	Process process.Config
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Mode:              "chat",
		Recursive:         true,
		WatchDebounce:     watch.DefaultDebounce,
		WatchPollInterval: 5 * time.Second,
		Process:           process.DefaultConfig(),
	}
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager is the session orchestrator. It is the only writer of the current
// project.
//
// Every project switch advances a generation counter. File tree refreshes are
// tagged with the generation current when they were issued, and a response
// whose tag no longer matches is dropped without being installed. Within one
// generation at most one listing is outstanding. A refresh requested while a
// listing is in flight waits for it and then for one follow-up listing, which
// every request that arrived in the meantime shares.
type Manager struct {
	mu sync.Mutex

	backend Backend
	cfg     Config
	logger  *zap.Logger

	tree    *filetree.Cache
	convo   *conversation.Log
	process *process.Manager

	projects   []model.Project
	agents     []model.Agent
	current    *model.Project
	generation uint64

	refreshes singleflight.Group
	// refreshRequested numbers refresh requests; refreshServed is the highest
	// request number covered by a completed listing.
	refreshRequested uint64
	refreshServed    uint64
	refreshErr       error
}

// NewManager creates a session manager over backend. A nil logger disables
// logging.
func NewManager(backend Backend, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultConfig().Mode
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = watch.DefaultDebounce
	}

	proc := process.NewManager(backend, cfg.Process, logger.Named("process"))
	proc.OnChange(func(st model.ProcessStatus) {
		metrics.SetAssistantState(st.State)
	})
	metrics.SetAssistantState(proc.Status().State)

	return &Manager{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		tree:    filetree.New(backend, cfg.Recursive, logger.Named("filetree")),
		convo:   conversation.New(proc, logger.Named("conversation")),
		process: proc,
	}
}

// Init loads agents and projects, selects the first project and, when
// configured, starts the assistant for it. Failing to load agents is only
// logged.
func (m *Manager) Init(ctx context.Context) error {
	if _, err := m.LoadAgents(ctx); err != nil {
		m.logger.Warn("could not load agents", zap.Error(err))
	}

	projects, err := m.LoadProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		m.logger.Info("no projects on server")
		return nil
	}

	if err := m.SelectProject(ctx, projects[0].ID); err != nil {
		return err
	}

	if m.cfg.AutoStart {
		if _, err := m.StartAssistant(ctx, ""); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// PROJECTS
// =============================================================================

// LoadProjects fetches the project list from the server.
func (m *Manager) LoadProjects(ctx context.Context) ([]model.Project, error) {
	projects, err := m.backend.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}

	m.mu.Lock()
	m.projects = projects
	m.mu.Unlock()

	return append([]model.Project(nil), projects...), nil
}

// Projects returns the last loaded project list.
func (m *Manager) Projects() []model.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Project(nil), m.projects...)
}

// Current returns the selected project, or false when none is selected.
func (m *Manager) Current() (model.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return model.Project{}, false
	}
	return *m.current, true
}

// SelectProject switches to the project whose ID (or name) is key.
//
// The switch clears the conversation and the file tree, including its
// expansion state, then fetches the new tree. The assistant process is left
// as it is. Responses still in flight for the previous project are dropped.
func (m *Manager) SelectProject(ctx context.Context, key string) error {
	m.mu.Lock()
	p := model.FindProject(m.projects, key)
	if p == nil {
		m.mu.Unlock()
		return fmt.Errorf("project %q: %w", key, model.ErrNoProject)
	}
	proj := *p
	m.switchLocked(&proj)
	m.mu.Unlock()

	metrics.RecordProjectSwitch()
	m.logger.Info("project selected",
		zap.String("project", proj.ID),
		zap.String("name", proj.Name),
		zap.String("path", proj.Path))

	return m.RefreshFiles(ctx)
}

// switchLocked makes p current (nil for none) and clears project-scoped state.
func (m *Manager) switchLocked(p *model.Project) {
	m.generation++
	m.current = p
	m.convo.Reset()
	if p == nil {
		m.tree.Reset("")
		return
	}
	m.tree.Reset(p.ID)
}

// CreateProject creates a project on the server and selects it.
func (m *Manager) CreateProject(ctx context.Context, name, path string) (model.Project, error) {
	name, path = strings.TrimSpace(name), strings.TrimSpace(path)
	if name == "" || path == "" {
		return model.Project{}, errors.New("project name and path are required")
	}

	p, err := m.backend.CreateProject(ctx, name, path)
	if err != nil {
		return model.Project{}, fmt.Errorf("create project: %w", err)
	}

	m.mu.Lock()
	m.projects = append(m.projects, *p)
	m.mu.Unlock()

	m.logger.Info("project created", zap.String("project", p.ID), zap.String("name", p.Name))
	return *p, m.SelectProject(ctx, p.ID)
}

// DeleteProject deletes a project on the server. Deleting the current project
// switches to the first remaining one, or to none.
func (m *Manager) DeleteProject(ctx context.Context, id string) error {
	if err := m.backend.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	m.mu.Lock()
	remaining := make([]model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	m.projects = remaining
	wasCurrent := m.current != nil && m.current.ID == id
	if wasCurrent && len(remaining) == 0 {
		m.switchLocked(nil)
	}
	m.mu.Unlock()

	m.logger.Info("project deleted", zap.String("project", id))

	if wasCurrent && len(remaining) > 0 {
		return m.SelectProject(ctx, remaining[0].ID)
	}
	if wasCurrent {
		metrics.RecordProjectSwitch()
	}
	return nil
}

// =============================================================================
// FILE TREE
// =============================================================================

// RefreshFiles refetches the current project's tree. A response that arrives
// after a project switch is discarded and RefreshFiles returns nil.
func (m *Manager) RefreshFiles(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return model.ErrNoProject
	}
	gen, projectID := m.generation, m.current.ID
	m.refreshRequested++
	ticket := m.refreshRequested
	m.mu.Unlock()

	key := strconv.FormatUint(gen, 10)
	var err error
	for {
		m.mu.Lock()
		switch {
		case gen != m.generation:
			m.mu.Unlock()
			return err
		case m.refreshServed >= ticket:
			err = m.refreshErr
			m.mu.Unlock()
			return err
		}
		m.mu.Unlock()

		var shared bool
		_, err, shared = m.refreshes.Do(key, func() (any, error) {
			// The listing starts now, so it covers every request made so far
			// unless the project has already switched.
			var covers uint64
			m.mu.Lock()
			if gen == m.generation {
				covers = m.refreshRequested
			}
			m.mu.Unlock()

			err := m.refresh(ctx, gen, projectID)

			m.mu.Lock()
			if covers > m.refreshServed {
				m.refreshServed = covers
				m.refreshErr = err
			}
			m.mu.Unlock()
			return nil, err
		})
		if shared {
			m.logger.Debug("refresh shared a listing", zap.Uint64("generation", gen))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (m *Manager) refresh(ctx context.Context, gen uint64, projectID string) error {
	start := time.Now()
	nodes, fetchErr := m.tree.Fetch(ctx, projectID)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		metrics.RecordRefresh(metrics.ResultStale, time.Since(start), 0)
		m.logger.Debug("discarding stale file tree",
			zap.String("project", projectID),
			zap.Uint64("generation", gen),
			zap.NamedError("fetch_error", fetchErr))
		return nil
	}
	if fetchErr != nil {
		m.mu.Unlock()
		metrics.RecordRefresh(metrics.ResultError, time.Since(start), 0)
		return fetchErr
	}
	err := m.tree.Install(projectID, nodes)
	m.mu.Unlock()

	if err != nil {
		metrics.RecordRefresh(metrics.ResultStale, time.Since(start), 0)
		m.logger.Debug("discarding stale file tree", zap.Error(err))
		return nil
	}

	count := model.CountNodes(nodes)
	metrics.RecordRefresh(metrics.ResultInstalled, time.Since(start), count)
	m.logger.Debug("file tree installed",
		zap.String("project", projectID),
		zap.Int("nodes", count),
		zap.Duration("took", time.Since(start)))
	return nil
}

// ToggleDir expands or collapses a directory and reports whether it is now
// expanded.
func (m *Manager) ToggleDir(path string) bool {
	return m.tree.Toggle(path)
}

// VisibleRows returns the rows of the current tree that are not hidden under
// a collapsed directory.
func (m *Manager) VisibleRows() iter.Seq[filetree.Row] {
	return m.tree.VisibleRows()
}

// Tree exposes the file tree cache for read-only helpers.
func (m *Manager) Tree() *filetree.Cache {
	return m.tree
}

// ReadFile returns a file's content from the server.
func (m *Manager) ReadFile(ctx context.Context, path string) (*api.FileContent, error) {
	fc, err := m.backend.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fc, nil
}

// WatchLocal refreshes the tree whenever the current project's directory
// changes on the local disk. It returns an error wrapping fs.ErrNotExist when
// the directory is not local. Watching stops when ctx is done or the project
// changes.
func (m *Manager) WatchLocal(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return model.ErrNoProject
	}
	gen, root := m.generation, m.current.Path
	m.mu.Unlock()

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", root)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	trigger := func() {
		m.mu.Lock()
		stale := gen != m.generation
		m.mu.Unlock()
		if stale {
			cancel()
			return
		}
		if err := m.RefreshFiles(watchCtx); err != nil && watchCtx.Err() == nil {
			m.logger.Warn("refresh after local change failed", zap.Error(err))
		}
	}

	w, err := watch.Start(root, m.cfg.WatchDebounce, m.cfg.WatchPollInterval, trigger, m.logger.Named("watch"))
	if err != nil {
		cancel()
		return fmt.Errorf("watch %s: %w", root, err)
	}

	go func() {
		<-watchCtx.Done()
		w.Close()
	}()

	m.logger.Info("watching project directory", zap.String("path", root))
	return nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

// SendMessage sends content to the assistant in the current project's
// directory. Only one send may be outstanding. A successful send refreshes the
// file tree since the assistant may have changed files; a failed refresh is
// logged, not returned.
func (m *Manager) SendMessage(ctx context.Context, content string) (model.Message, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return model.Message{}, model.ErrNoProject
	}
	dir := m.current.Path
	m.mu.Unlock()

	start := time.Now()
	reply, err := m.convo.SendTurn(ctx, content, dir)
	metrics.RecordSend(sendResult(err), time.Since(start))
	if err != nil {
		return model.Message{}, err
	}

	if rerr := m.RefreshFiles(ctx); rerr != nil {
		m.logger.Warn("refresh after send failed", zap.Error(rerr))
	}
	return reply, nil
}

func sendResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultDelivered
	case errors.Is(err, model.ErrBusy):
		return metrics.ResultBusy
	case errors.Is(err, model.ErrNotReady):
		return metrics.ResultNotReady
	case errors.Is(err, model.ErrStaleResponse):
		return metrics.ResultStale
	default:
		return metrics.ResultFailed
	}
}

// Messages returns a snapshot of the conversation.
func (m *Manager) Messages() []model.Message {
	return m.convo.Messages()
}

// Busy reports whether a send is outstanding.
func (m *Manager) Busy() bool {
	return m.convo.Busy()
}

// =============================================================================
// ASSISTANT PROCESS
// =============================================================================

// StartAssistant starts the assistant in the current project's directory.
// An empty mode uses the configured one.
func (m *Manager) StartAssistant(ctx context.Context, mode string) (model.ProcessStatus, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return m.process.Status(), model.ErrNoProject
	}
	dir := m.current.Path
	m.mu.Unlock()

	if mode == "" {
		mode = m.cfg.Mode
	}
	return m.process.Start(ctx, mode, dir), nil
}

// StopAssistant stops the assistant process.
func (m *Manager) StopAssistant(ctx context.Context) error {
	return m.process.Stop(ctx)
}

// AssistantStatus returns the assistant status without a network call.
func (m *Manager) AssistantStatus() model.ProcessStatus {
	return m.process.Status()
}

// PollAssistant refreshes the status of a starting assistant.
func (m *Manager) PollAssistant(ctx context.Context) model.ProcessStatus {
	return m.process.Poll(ctx)
}

// WaitAssistant blocks until the assistant is ready or has failed.
func (m *Manager) WaitAssistant(ctx context.Context) (model.ProcessStatus, error) {
	return m.process.WaitReady(ctx)
}

// OnAssistantChange registers an observer for assistant transitions.
func (m *Manager) OnAssistantChange(fn func(model.ProcessStatus)) {
	m.process.OnChange(fn)
}

// =============================================================================
// AGENTS
// =============================================================================

// LoadAgents fetches the agent list from the server.
func (m *Manager) LoadAgents(ctx context.Context) ([]model.Agent, error) {
	agents, err := m.backend.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	m.mu.Lock()
	m.agents = agents
	m.mu.Unlock()
	return append([]model.Agent(nil), agents...), nil
}

// Agents returns the last loaded agent list.
func (m *Manager) Agents() []model.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Agent(nil), m.agents...)
}

// AskAgent streams a one-off question to an agent, sending the delivered
// conversation as history. The conversation itself is not changed.
func (m *Manager) AskAgent(ctx context.Context, agentID, message string, onChunk api.StreamCallback) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", model.ErrEmptyMessage
	}

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return "", model.ErrNoProject
	}
	projectID := m.current.ID
	m.mu.Unlock()

	req := api.ChatRequest{
		ProjectID: projectID,
		AgentID:   agentID,
		Message:   message,
		History:   m.convo.History(),
	}
	reply, err := m.backend.ChatStream(ctx, req, onChunk)
	if err != nil {
		return reply, fmt.Errorf("ask agent %s: %w", agentID, err)
	}
	return reply, nil
}
