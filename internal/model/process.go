// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ProcessState is the lifecycle state of the external assistant process.
type ProcessState string

const (
	StateUninitialized ProcessState = "uninitialized"
	StateStarting      ProcessState = "starting"
	StateReady         ProcessState = "ready"
	StateFailed        ProcessState = "failed"
)

// ProcessStatus is a snapshot of the assistant process lifecycle.
type ProcessStatus struct {
	State      ProcessState `json:"status"`
	Mode       string       `json:"mode,omitempty"`
	WorkingDir string       `json:"workingDir,omitempty"`
	Diagnostic string       `json:"diagnostic,omitempty"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Ready reports whether messages may be sent.
func (s ProcessStatus) Ready() bool {
	return s.State == StateReady
}

// Label returns a short human-readable description of the status.
func (s ProcessStatus) Label() string {
	switch s.State {
	case StateReady:
		return "ready"
	case StateStarting:
		return "starting..."
	case StateFailed:
		if s.Diagnostic != "" {
			return "failed: " + s.Diagnostic
		}
		return "failed"
	default:
		return "not started"
	}
}
