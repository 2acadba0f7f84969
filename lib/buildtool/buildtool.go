// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package buildtool wraps the Klipper build system. Every make
// invocation kqf performs goes through [Make], so the exact command
// lines are visible in one place and testable against a fake runner.
package buildtool

import (
	"context"
	"log/slog"

	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// Make drives make in the Klipper source tree. Housekeeping targets
// run with captured output; builds and interactive targets run
// attached to the user's terminal.
type Make struct {
	repo   string
	runner runner.Runner
	logger *slog.Logger
}

// New returns a Make rooted at the given Klipper checkout.
func New(repo string, r runner.Runner, logger *slog.Logger) *Make {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Make{repo: repo, runner: r, logger: logger}
}

// Repo returns the source tree the build runs in.
func (m *Make) Repo() string {
	return m.repo
}

func (m *Make) cmd(args ...string) runner.Command {
	return runner.Command{Name: "make", Args: args, Dir: m.repo}
}

// Clean removes build outputs, keeping the configuration.
func (m *Make) Clean(ctx context.Context) error {
	m.logger.Debug("cleaning workspace")
	_, err := m.runner.Run(ctx, m.cmd("clean"))
	return err
}

// OldDefConfig regenerates derived configuration values after a saved
// kconfig is loaded into the tree.
func (m *Make) OldDefConfig(ctx context.Context) error {
	m.logger.Debug("running olddefconfig")
	_, err := m.runner.Run(ctx, m.cmd("olddefconfig"))
	return err
}

// DistClean removes build outputs and the configuration.
func (m *Make) DistClean(ctx context.Context) error {
	m.logger.Debug("running distclean")
	_, err := m.runner.Run(ctx, m.cmd("distclean"))
	return err
}

// All builds the firmware, attached so build progress is visible.
// Callers clean first in a separate invocation: Klipper's build does
// not handle `make clean all` in one run.
func (m *Make) All(ctx context.Context) error {
	return m.runner.RunAttached(ctx, m.cmd("all"))
}

// Menuconfig cleans and opens the interactive configuration editor in
// a single invocation, attached to the user's terminal.
func (m *Make) Menuconfig(ctx context.Context) error {
	return m.runner.RunAttached(ctx, m.cmd("clean", "menuconfig"))
}

// Target runs make with arbitrary arguments attached to the terminal.
// Flashing uses this: the flash target takes --old-file and var
// assignments ahead of the target name.
func (m *Make) Target(ctx context.Context, args ...string) error {
	return m.runner.RunAttached(ctx, m.cmd(args...))
}
