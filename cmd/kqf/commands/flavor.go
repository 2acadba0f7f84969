// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
)

func flavorCommand() *cli.Command {
	return &cli.Command{
		Name:    "flavor",
		Summary: "Manage build flavors",
		Description: `Work with build flavors.

A flavor is a saved Klipper build configuration plus the firmware
archives built from it. Flavors share the one Klipper source tree:
kqf loads a flavor's kconfig into the tree for the duration of a
build and saves it back afterwards.`,
		Subcommands: []*cli.Command{
			flavorListCommand(),
			flavorMenuconfigCommand(),
			flavorBuildCommand(),
		},
	}
}

func flavorListCommand() *cli.Command {
	var flags globalFlags

	return &cli.Command{
		Name:    "list",
		Summary: "List flavors and their archived firmware",
		Usage:   "kqf flavor list [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			a, err := newApp(&flags)
			if err != nil {
				return err
			}
			defer a.Close()

			names := a.store.ListExisting()
			if len(names) == 0 {
				fmt.Println("No flavors yet. Create one with 'kqf flavor menuconfig <name>'.")
				return nil
			}
			for _, name := range names {
				versions := a.store.ListFirmwareVersions(name)
				if len(versions) == 0 {
					fmt.Printf("%s (never built)\n", name)
					continue
				}
				fmt.Printf("%s: %s\n", name, strings.Join(versions, ", "))
			}
			return nil
		},
	}
}

func flavorMenuconfigCommand() *cli.Command {
	var flags globalFlags
	var buildAfter bool

	return &cli.Command{
		Name:    "menuconfig",
		Summary: "Edit a flavor's build configuration",
		Description: `Open Klipper's interactive build configuration editor for a
flavor. The flavor is created on first save if it does not exist
yet. With --build, firmware is built and archived right after the
editor closes, under the same workspace occupancy.`,
		Usage: "kqf flavor menuconfig [--build] <flavor>",
		Examples: []cli.Example{
			{
				Description: "Configure a new flavor for the toolhead board",
				Command:     "kqf flavor menuconfig toolhead",
			},
			{
				Description: "Reconfigure and immediately rebuild",
				Command:     "kqf flavor menuconfig --build mainboard",
			},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("menuconfig", pflag.ContinueOnError)
			fs.BoolVar(&buildAfter, "build", false, "build firmware after configuring")
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: kqf flavor menuconfig [--build] <flavor>")
			}
			a, err := newApp(&flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.workspace.Menuconfig(ctx, args[0], buildAfter)
		},
	}
}

func flavorBuildCommand() *cli.Command {
	var flags globalFlags
	var all bool
	var version string

	return &cli.Command{
		Name:    "build",
		Summary: "Build flavor firmware",
		Description: `Build firmware for one flavor, or for every saved flavor with
--all, and archive the outputs under the firmware directory.

Building every flavor continues past individual failures and prints
a summary at the end; the exit status is non-zero if anything
failed.`,
		Usage: "kqf flavor build [--all | <flavor>] [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("build", pflag.ContinueOnError)
			fs.BoolVar(&all, "all", false, "build every saved flavor")
			fs.StringVar(&version, "version", "latest", "version name to archive the firmware under")
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			a, err := newApp(&flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var targets []string
			switch {
			case all && len(args) > 0:
				return fmt.Errorf("both --all and a flavor name may not be specified")
			case all:
				targets = a.store.ListExisting()
				if len(targets) == 0 {
					return fmt.Errorf("no flavors to build; create one with 'kqf flavor menuconfig <name>'")
				}
			case len(args) == 1:
				targets = args
			default:
				return fmt.Errorf("usage: kqf flavor build [--all | <flavor>]")
			}
			return buildFlavors(ctx, a, targets, version)
		},
	}
}

// buildFlavors builds each flavor in turn, tolerating individual
// failures, and prints the per-flavor summary.
func buildFlavors(ctx context.Context, a *app, flavors []string, version string) error {
	var succeeded, failed []string
	for _, name := range flavors {
		if err := a.workspace.Build(ctx, name, version); err != nil {
			a.logger.Error("flavor build failed", "flavor", name, "error", err)
			failed = append(failed, name)
			continue
		}
		succeeded = append(succeeded, name)
	}
	fmt.Printf("Successful Flavors: %s\n", strings.Join(succeeded, ","))
	fmt.Printf("Failed Flavors: %s\n", strings.Join(failed, ","))
	if len(failed) > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
