// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package commands builds the kqf CLI command tree. Each leaf command
// loads the configuration itself (via its own global flags) so that
// commands which do not need one, like upgrade and the wizard, still
// run on a machine with no kqf.yml.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/lib/version"
)

// Root builds and returns the complete kqf command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "kqf",
		Description: `KQF: Klipper Quick Flash.

Build Klipper firmware for every MCU on a printer and flash it,
without juggling .config files in the Klipper tree by hand. Saved
build profiles (flavors) share one source tree, firmware is archived
per flavor and version, and flashing knows how to walk an MCU into
its bootloader first.`,
		Subcommands: []*cli.Command{
			mcuInfoCommand(),
			flavorCommand(),
			flashCommand(),
			configCommand(),
			upgradeCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("kqf %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Create the configuration file",
				Command:     "kqf config wizard",
			},
			{
				Description: "Show every MCU and how it will be flashed",
				Command:     "kqf mcu-info",
			},
			{
				Description: "Create or edit a flavor's build configuration",
				Command:     "kqf flavor menuconfig mainboard",
			},
			{
				Description: "Build firmware for every flavor",
				Command:     "kqf flavor build --all",
			},
			{
				Description: "Build everything needed, then flash every MCU",
				Command:     "kqf flash --all --build",
			},
		},
	}
}
