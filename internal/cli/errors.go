// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes and error presentation for projchat commands.
//
// Commands always return errors and let Execute decide how to show them.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/config"
	"github.com/jeranaias/projchat/internal/model"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNotReadyError indicates the assistant was not ready or busy
	ExitNotReadyError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a project or resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// UsageError marks bad arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// usageErrorf creates a UsageError.
func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var verrs config.ValidateErrors
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &verrs):
		return ExitConfigError
	case api.IsTimeout(err):
		return ExitTimeoutError
	case api.StatusCode(err) == 404, errors.Is(err, model.ErrNoProject):
		return ExitNotFoundError
	case api.IsNetworkFailure(err):
		return ExitNetworkError
	case errors.Is(err, model.ErrNotReady), errors.Is(err, model.ErrBusy):
		return ExitNotReadyError
	default:
		return ExitGeneralError
	}
}

// printError writes err to w in the error style. Collaborator errors use the
// server's own message.
func printError(w io.Writer, err error) {
	msg := err.Error()
	if api.IsNetworkFailure(err) {
		msg = api.Describe(err)
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[Error]"), msg)
}
