// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package editor picks and launches the user's text editor, for
// letting them touch up generated configuration.
package editor

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// envEditors are consulted in order; a value only wins if it resolves
// on PATH.
var envEditors = []string{"KQF_EDITOR", "VISUAL", "EDITOR"}

// fallbackEditors are tried when no environment variable names a
// usable editor. sensible-editor and editor come first so Debian-style
// alternatives are honored.
var fallbackEditors = []string{"sensible-editor", "editor", "vim", "vi", "emacs", "nano", "pico"}

// ErrNoEditor means neither the environment nor the fallback list
// produced a runnable editor.
var ErrNoEditor = errors.New("no editor found; set KQF_EDITOR, VISUAL, or EDITOR")

// Find returns the editor command to use.
func Find() (string, error) {
	for _, key := range envEditors {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if _, err := exec.LookPath(value); err == nil {
			return value, nil
		}
	}
	for _, name := range fallbackEditors {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", ErrNoEditor
}

// Launch opens path in the user's editor, attached to the terminal,
// and waits for it to exit.
func Launch(ctx context.Context, r runner.Runner, path string) error {
	name, err := Find()
	if err != nil {
		return err
	}
	return r.RunAttached(ctx, runner.Command{Name: name, Args: []string{path}})
}
