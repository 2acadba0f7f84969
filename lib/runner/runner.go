// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable, resolved via PATH unless absolute.
	Name string

	// Args are the arguments, not including the executable name.
	Args []string

	// Dir is the working directory. Empty means inherit the current
	// process's working directory.
	Dir string

	// Env holds KEY=VALUE entries appended to the parent environment.
	Env []string
}

// String returns the command line in a loggable form.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner abstracts subprocess execution. Flash and build procedures
// are written against this interface so they can be exercised in tests
// without invoking real tools.
type Runner interface {
	// Run executes the command and returns stdout. Stderr is captured
	// separately and included in the error message on failure.
	Run(ctx context.Context, cmd Command) (string, error)

	// RunAttached executes the command wired to the current process's
	// stdin, stdout, and stderr. Used for interactive tools
	// (menuconfig, editors) and for builds whose output the user
	// should see live.
	RunAttached(ctx context.Context, cmd Command) error
}

// Exec returns the Runner backed by os/exec.
func Exec() Runner {
	return execRunner{}
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, cmd Command) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	command.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		command.Env = append(os.Environ(), cmd.Env...)
	}
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", runError(cmd, err, stderr.String())
	}
	return stdout.String(), nil
}

func (execRunner) RunAttached(ctx context.Context, cmd Command) error {
	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	command.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		command.Env = append(os.Environ(), cmd.Env...)
	}
	command.Stdin = os.Stdin
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr

	if err := command.Run(); err != nil {
		if cmd.Dir != "" {
			return fmt.Errorf("%s in %s: %w", cmd, cmd.Dir, err)
		}
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// runError formats a captured-output failure the same way for every
// tool: command line, working directory when set, the underlying
// error, and trimmed stderr.
func runError(cmd Command, err error, stderr string) error {
	if cmd.Dir != "" {
		return fmt.Errorf("%s in %s: %w (stderr: %s)",
			cmd, cmd.Dir, err, strings.TrimSpace(stderr))
	}
	return fmt.Errorf("%s: %w (stderr: %s)", cmd, err, strings.TrimSpace(stderr))
}

// ExitCode returns the subprocess exit code buried in err, or -1 if
// err does not wrap an *exec.ExitError (the tool never started, or the
// failure is unrelated to the subprocess).
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
