// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the orchestration components.
var (
	// ErrNetwork is matched by every collaborator failure (non-2xx or
	// transport error).
	ErrNetwork = errors.New("network failure")

	// ErrNotReady means a send was attempted while the assistant process
	// was not ready.
	ErrNotReady = errors.New("assistant is not ready")

	// ErrEmptyMessage is returned for blank input. It wraps ErrNotReady.
	ErrEmptyMessage = fmt.Errorf("%w: message is empty", ErrNotReady)

	// ErrBusy means another send is still outstanding.
	ErrBusy = errors.New("another request is in flight")

	// ErrStaleResponse marks a response issued before the most recent
	// project switch. It is dropped, never shown to the user.
	ErrStaleResponse = errors.New("stale response")

	// ErrNoProject means an operation needs a current project and there is none.
	ErrNoProject = errors.New("no project selected")
)
