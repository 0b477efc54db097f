// Package action executes a configured shell command against a
// collection item, such as setting a wallpaper or opening an editor.
package action

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ErrNoCommand indicates no action command is configured.
var ErrNoCommand = errors.New("action: no command configured")

// DefaultTimeout bounds a single action invocation.
const DefaultTimeout = 30 * time.Second

// Result reports one action invocation.
type Result struct {
	Command  string
	Output   string // combined stdout and stderr
	ExitedOK bool
	Err      string // exit or spawn error when ExitedOK is false
}

// Runner executes the configured command via sh -c, substituting
// {path} with the item's file path.
type Runner struct {
	command string
	timeout time.Duration
}

// NewRunner creates a Runner for the given command template. An empty
// command yields a Runner whose Run always returns ErrNoCommand.
func NewRunner(command string) *Runner {
	return &Runner{command: command, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-invocation timeout.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	r.timeout = d
	return r
}

// Run executes the command for the item at path. The process always
// runs to completion or timeout; a non-zero exit is reported in the
// Result, not as an error.
func (r *Runner) Run(ctx context.Context, path string) (Result, error) {
	if r.command == "" {
		return Result{}, ErrNoCommand
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Quote the path for the shell; single quotes neutralize
	// everything except embedded single quotes.
	quoted := "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
	expanded := strings.ReplaceAll(r.command, "{path}", quoted)

	cmd := exec.CommandContext(ctx, "sh", "-c", expanded)
	output, err := cmd.CombinedOutput()
	res := Result{
		Command:  expanded,
		Output:   string(output),
		ExitedOK: err == nil,
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res, nil
}
