// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// Exit codes.
const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNotFoundError = 4
)

// UsageError reports bad command-line input.
type UsageError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NewUsageError creates a UsageError. example may be empty.
func NewUsageError(field, value, reason, example string) error {
	return &UsageError{Field: field, Value: value, Reason: reason, Example: example}
}

// CommandError wraps a failure with the command that produced it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func commandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsageError
	}
	var verr config.ValidateErrors
	if errors.As(err, &verr) {
		return ExitConfigError
	}
	if errors.Is(err, storage.ErrChatNotFound) || errors.Is(err, storage.ErrMessageNotFound) {
		return ExitNotFoundError
	}
	return ExitError
}

// DisplayError writes err to w in the error style.
func DisplayError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Error:"), err)
}
