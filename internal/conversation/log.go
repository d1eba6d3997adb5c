// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/projchat/internal/model"
)

// Assistant is the process a log sends turns to. *process.Manager
// satisfies it.
type Assistant interface {
	Status() model.ProcessStatus
	Chat(ctx context.Context, message, workingDir string) (string, error)
}

// =============================================================================
// LOG
// =============================================================================

// Log is the ordered transcript of the active project's conversation.
//
// Sends are serialized: while one SendTurn is outstanding every other call
// fails with model.ErrBusy, so append order always matches call order. The
// user turn is appended before the network call and stays in the log even
// when the call fails, marked with model.DeliveryFailed.
type Log struct {
	mu sync.Mutex

	assistant Assistant
	logger    *zap.Logger

	messages []model.Message
	busy     bool

	// epoch advances on every Reset so a send that outlives a reset does
	// not write its reply into the next project's transcript.
	epoch uint64
}

// New creates an empty log. A nil logger disables logging.
func New(assistant Assistant, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		assistant: assistant,
		logger:    logger,
		messages:  make([]model.Message, 0),
	}
}

// Reset clears the transcript.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = make([]model.Message, 0)
	l.epoch++
}

// =============================================================================
// SENDING
// =============================================================================

// SendTurn appends content as a user turn, sends it to the assistant bound
// to workingDir and appends the reply.
//
// Errors:
//   - model.ErrEmptyMessage (matches model.ErrNotReady) when content is blank
//   - model.ErrNotReady when the assistant is not ready
//   - model.ErrBusy when another send is outstanding
//   - model.ErrStaleResponse when Reset ran while the send was outstanding
//   - the assistant's error otherwise; the user turn is kept and marked failed
//
// The log is unchanged by the first three.
func (l *Log) SendTurn(ctx context.Context, content, workingDir string) (model.Message, error) {
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return model.Message{}, model.ErrEmptyMessage
	}
	if !l.assistant.Status().Ready() {
		return model.Message{}, model.ErrNotReady
	}

	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return model.Message{}, model.ErrBusy
	}
	l.busy = true
	epoch := l.epoch
	user := model.NewUserMessage(content)
	l.appendLocked(user)
	l.mu.Unlock()

	reply, err := l.assistant.Chat(ctx, content, workingDir)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.busy = false

	if epoch != l.epoch {
		l.logger.Debug("dropping reply for a reset conversation",
			zap.String("message_id", user.ID),
			zap.Bool("failed", err != nil))
		return model.Message{}, model.ErrStaleResponse
	}

	if err != nil {
		l.markLocked(user.ID, model.DeliveryFailed, err.Error())
		l.logger.Warn("send failed",
			zap.String("message_id", user.ID),
			zap.Error(err))
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}

	l.markLocked(user.ID, model.DeliveryDelivered, "")
	msg := model.NewAssistantMessage(reply)
	l.appendLocked(msg)
	return msg, nil
}

func (l *Log) appendLocked(msg model.Message) {
	l.messages = append(l.messages, msg)
}

func (l *Log) markLocked(id string, d model.Delivery, errText string) {
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].ID == id {
			l.messages[i].Delivery = d
			l.messages[i].Error = errText
			return
		}
	}
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Messages returns a snapshot of the transcript.
func (l *Log) Messages() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Message(nil), l.messages...)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Busy reports whether a send is outstanding.
func (l *Log) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// History returns the delivered turns as {role, content} pairs. Failed and
// pending user turns are left out.
func (l *Log) History() []model.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := make([]model.HistoryEntry, 0, len(l.messages))
	for _, m := range l.messages {
		if m.Delivery != model.DeliveryDelivered {
			continue
		}
		history = append(history, model.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return history
}
