// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/model"
)

// Backend is the collaborator surface that controls the assistant process.
// *api.Client satisfies it.
type Backend interface {
	StartAssistant(ctx context.Context, mode, workingDir string) (*api.AssistantStatus, error)
	AssistantStatus(ctx context.Context) (*api.AssistantStatus, error)
	AssistantChat(ctx context.Context, message, workingDir string) (string, error)
	StopAssistant(ctx context.Context) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the process manager.
type Config struct {
	// PollInterval is the minimum gap between status reads in WaitReady
	// (default: 1 second)
	PollInterval time.Duration

	// StartTimeout bounds WaitReady (default: 2 minutes, 0 disables)
	StartTimeout time.Duration
}

// DefaultConfig returns the default process manager configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		StartTimeout: 2 * time.Minute,
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the lifecycle status of the external assistant process.
//
//	uninitialized --Start--> starting --ok--> ready
//	starting --fail--> failed --Start--> starting
//	ready|starting|failed --Stop--> uninitialized
//
// Status only changes through Start, Poll and Stop. Network I/O happens
// without the lock held, so Status stays responsive during a start.
type Manager struct {
	mu sync.Mutex

	backend Backend
	config  Config
	logger  *zap.Logger

	status   model.ProcessStatus
	starting bool // a Start call is waiting on the collaborator

	// attempt is bumped by every Start and every successful Stop. A
	// response whose attempt no longer matches is ignored.
	attempt uint64

	observers []func(model.ProcessStatus)
}

// NewManager creates a manager in the uninitialized state.
func NewManager(backend Backend, cfg Config, logger *zap.Logger) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend: backend,
		config:  cfg,
		logger:  logger,
		status: model.ProcessStatus{
			State:     model.StateUninitialized,
			UpdatedAt: time.Now(),
		},
	}
}

// OnChange registers fn to be called after every status transition. fn runs
// on the goroutine that caused the transition, without the lock held.
func (m *Manager) OnChange(fn func(model.ProcessStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Status returns a snapshot of the current status.
func (m *Manager) Status() model.ProcessStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start asks the collaborator to start the assistant in mode, bound to
// workingDir. It never fails; inspect the returned status.
//
// Start is a no-op when the process is already ready with the same mode and
// working dir, or when a start is already under way.
func (m *Manager) Start(ctx context.Context, mode, workingDir string) model.ProcessStatus {
	m.mu.Lock()
	cur := m.status
	if cur.State == model.StateReady && cur.Mode == mode && cur.WorkingDir == workingDir {
		m.mu.Unlock()
		return cur
	}
	if m.starting || cur.State == model.StateStarting {
		m.mu.Unlock()
		return cur
	}

	m.attempt++
	attempt := m.attempt
	m.starting = true
	snap, observers := m.setLocked(model.ProcessStatus{
		State:      model.StateStarting,
		Mode:       mode,
		WorkingDir: workingDir,
	})
	m.mu.Unlock()
	m.notify(observers, snap)

	m.logger.Info("starting assistant",
		zap.String("mode", mode),
		zap.String("working_dir", workingDir))

	resp, err := m.backend.StartAssistant(ctx, mode, workingDir)

	m.mu.Lock()
	if attempt != m.attempt {
		// A Stop or newer Start superseded this one.
		cur := m.status
		m.mu.Unlock()
		m.logger.Debug("discarding superseded start response", zap.Uint64("attempt", attempt))
		return cur
	}
	m.starting = false

	next := m.status
	if err != nil {
		next.State = model.StateFailed
		next.Diagnostic = api.Describe(err)
	} else {
		next = applyRemote(next, resp)
	}
	snap, observers = m.setLocked(next)
	m.mu.Unlock()
	m.notify(observers, snap)

	m.logTransition(snap)
	return snap
}

// Poll refreshes a starting status from GET /claude/status. In any other
// state it returns the current snapshot without a network call.
func (m *Manager) Poll(ctx context.Context) model.ProcessStatus {
	m.mu.Lock()
	if m.status.State != model.StateStarting || m.starting {
		cur := m.status
		m.mu.Unlock()
		return cur
	}
	attempt := m.attempt
	m.mu.Unlock()

	resp, err := m.backend.AssistantStatus(ctx)

	m.mu.Lock()
	if attempt != m.attempt || m.status.State != model.StateStarting {
		cur := m.status
		m.mu.Unlock()
		return cur
	}

	next := m.status
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the process.
			cur := m.status
			m.mu.Unlock()
			return cur
		}
		next.State = model.StateFailed
		next.Diagnostic = api.Describe(err)
	} else {
		next = applyRemote(next, resp)
	}
	if next.State == model.StateStarting {
		m.mu.Unlock()
		return next
	}
	snap, observers := m.setLocked(next)
	m.mu.Unlock()
	m.notify(observers, snap)

	m.logTransition(snap)
	return snap
}

// WaitReady polls until the process is ready or has failed. Polls are rate
// limited to one per PollInterval and bounded by StartTimeout.
func (m *Manager) WaitReady(ctx context.Context) (model.ProcessStatus, error) {
	if m.config.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.StartTimeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(m.config.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			st := m.Status()
			if errors.Is(ctx.Err(), context.Canceled) {
				return st, fmt.Errorf("wait for assistant: %w", ctx.Err())
			}
			// Deadline reached, or the next poll would land past it.
			return st, fmt.Errorf("assistant still %s: %w", st.State, model.ErrNotReady)
		}

		st := m.Poll(ctx)
		switch st.State {
		case model.StateReady:
			return st, nil
		case model.StateFailed:
			return st, fmt.Errorf("assistant failed to start: %s: %w", st.Diagnostic, model.ErrNotReady)
		case model.StateUninitialized:
			return st, fmt.Errorf("assistant not started: %w", model.ErrNotReady)
		}
	}
}

// Stop asks the collaborator to stop the assistant. On success the status
// becomes uninitialized and any in-flight Start is discarded. On failure
// the status is unchanged.
func (m *Manager) Stop(ctx context.Context) error {
	if err := m.backend.StopAssistant(ctx); err != nil {
		m.logger.Warn("stop assistant failed", zap.Error(err))
		return fmt.Errorf("stop assistant: %w", err)
	}

	m.mu.Lock()
	m.attempt++
	m.starting = false
	snap, observers := m.setLocked(model.ProcessStatus{State: model.StateUninitialized})
	m.mu.Unlock()
	m.notify(observers, snap)

	m.logTransition(snap)
	return nil
}

// Chat sends message to the ready assistant bound to workingDir.
func (m *Manager) Chat(ctx context.Context, message, workingDir string) (string, error) {
	if !m.Status().Ready() {
		return "", model.ErrNotReady
	}
	reply, err := m.backend.AssistantChat(ctx, message, workingDir)
	if err != nil {
		return "", fmt.Errorf("assistant chat: %w", err)
	}
	return reply, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// applyRemote maps a collaborator status onto the local state machine.
// Unknown values keep the process starting so polling resolves them.
func applyRemote(cur model.ProcessStatus, resp *api.AssistantStatus) model.ProcessStatus {
	if resp == nil {
		cur.State = model.StateFailed
		cur.Diagnostic = "empty status response"
		return cur
	}
	if resp.Mode != "" {
		cur.Mode = resp.Mode
	}
	if resp.WorkingDir != "" {
		cur.WorkingDir = resp.WorkingDir
	}

	switch resp.Status {
	case "ready":
		cur.State = model.StateReady
		cur.Diagnostic = ""
	case "error", "failed":
		cur.State = model.StateFailed
		cur.Diagnostic = resp.Diagnostic()
		if cur.Diagnostic == "" {
			cur.Diagnostic = "assistant reported an error"
		}
	case "stopped":
		cur.State = model.StateFailed
		cur.Diagnostic = "assistant process exited during start"
	default:
		cur.State = model.StateStarting
		cur.Diagnostic = resp.Diagnostic()
	}
	return cur
}

func (m *Manager) setLocked(next model.ProcessStatus) (model.ProcessStatus, []func(model.ProcessStatus)) {
	next.UpdatedAt = time.Now()
	m.status = next
	return next, slices.Clone(m.observers)
}

func (m *Manager) notify(observers []func(model.ProcessStatus), st model.ProcessStatus) {
	for _, fn := range observers {
		fn(st)
	}
}

func (m *Manager) logTransition(st model.ProcessStatus) {
	fields := []zap.Field{
		zap.String("state", string(st.State)),
		zap.String("mode", st.Mode),
		zap.String("working_dir", st.WorkingDir),
	}
	if st.State == model.StateFailed {
		m.logger.Warn("assistant status", append(fields, zap.String("diagnostic", st.Diagnostic))...)
		return
	}
	m.logger.Info("assistant status", fields...)
}
