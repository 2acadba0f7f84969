// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/cmd/kqf/commands"
	"github.com/Laikulo/klipper-quickflash/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like flavor build's
		// summary) return an ExitError with the desired exit code.
		// Don't print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	// Ctrl-C cancels the context, which kills any running subprocess
	// (make, the flashtool) and unwinds through the deferred workspace
	// cleanup.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Leaf commands rebuild the logger once their --log-level and
	// --log-format flags are parsed; this one covers dispatch errors.
	logger, err := cli.NewLogger("info", "")
	if err != nil {
		return err
	}
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
