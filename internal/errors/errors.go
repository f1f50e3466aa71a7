// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the piranha CLI.
//
// It defines UserError, a type that carries structured error information
// (what went wrong, why, and how to fix it) plus an exit code, mapping a
// small taxonomy of failure kinds onto small distinct exit codes:
//
//	config error            -> ExitConfig
//	instantiation error      -> ExitInstantiation
//	unrecoverable corruption -> ExitCorruption
//	I/O error                -> ExitIO
//
// Match-time constraint failure and recoverable syntax corruption are
// normal control flow and never reach this package.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for different error categories.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitConfig indicates a missing or unparseable config file.
	ExitConfig = 1

	// ExitInstantiation indicates a hole left unbound where the caller
	// required it (an internal bug unless it arises from user config).
	ExitInstantiation = 2

	// ExitCorruption indicates a file's syntax recovery exhausted every
	// step without producing an error-free tree.
	ExitCorruption = 3

	// ExitIO indicates a read/write/walk failure.
	ExitIO = 4

	// ExitInternal indicates unexpected errors that are bugs, not
	// expected failure modes.
	ExitInternal = 10
)

// UserError represents an error with structured context for end users:
// Message (what went wrong), Cause (why), Fix (how to resolve it), an
// ExitCode, and an optionally wrapped Err.
type UserError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As over the wrapped Err.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a config error.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewInstantiationError creates an instantiation error — used when a hole
// is left unbound in a context where the caller has no diagnostic-and-skip
// fallback available.
func NewInstantiationError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInstantiation, Err: err}
}

// NewCorruptionError creates an unrecoverable-syntax-corruption error.
// cause should include the final source so the diagnostic is actionable.
func NewCorruptionError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitCorruption, Err: err}
}

// NewIOError creates an I/O error.
func NewIOError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitIO, Err: err}
}

// NewInternalError creates an internal error for unexpected bugs.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInternal, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display, honoring
// NO_COLOR and the noColor parameter.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON is the JSON-serializable form of a UserError, for --json mode.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the UserError into its JSON-serializable form.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// FatalError prints err (colored or JSON per jsonOutput) and exits with
// its exit code. Never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ue, ok := err.(*UserError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
