// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/pflag"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/lib/mcu"
)

func flashCommand() *cli.Command {
	var flags globalFlags
	var all, buildFirst, noEnter bool
	var version string

	return &cli.Command{
		Name:    "flash",
		Summary: "Flash firmware onto MCUs",
		Description: `Resolve the named MCUs and flash each one with the archived
firmware for its flavor.

With --build, the flavors the targets need are built first; any
build failure aborts before anything is flashed. Bootloader entry
runs automatically when the MCU needs it; --no-enter skips it for
an MCU already sitting in its bootloader.`,
		Usage: "kqf flash [--all | <mcu>...] [flags]",
		Examples: []cli.Example{
			{
				Description: "Flash the primary MCU",
				Command:     "kqf flash mcu",
			},
			{
				Description: "Rebuild everything needed and flash every MCU",
				Command:     "kqf flash --all --build",
			},
			{
				Description: "Flash an archived version onto the toolhead",
				Command:     "kqf flash --version v0.12.0 toolhead",
			},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("flash", pflag.ContinueOnError)
			fs.BoolVar(&all, "all", false, "flash every known MCU")
			fs.StringVar(&version, "version", "latest", "archived firmware version to flash")
			fs.BoolVar(&buildFirst, "build", false, "build the needed flavors before flashing")
			fs.BoolVar(&noEnter, "no-enter", false, "skip bootloader entry")
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			a, err := newApp(&flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var names []string
			switch {
			case all && len(args) > 0:
				return fmt.Errorf("both --all and a list of MCUs may not be specified")
			case all:
				names = a.inventory()
			default:
				names = args
			}
			if len(names) == 0 {
				return fmt.Errorf("no MCUs are specified for flashing")
			}

			known := make(map[string]bool)
			for _, name := range a.inventory() {
				known[name] = true
			}
			records := make([]*mcu.Record, 0, len(names))
			for _, name := range names {
				if !known[name] {
					return fmt.Errorf("the MCU configuration %q could not be found, check the KQF configuration", name)
				}
				records = append(records, a.resolve(ctx, name))
			}

			if buildFirst {
				if err := buildForFlash(ctx, a, records, version); err != nil {
					return err
				}
			}

			for _, rec := range records {
				if err := a.flash.Flash(ctx, rec, version, !noEnter); err != nil {
					return fmt.Errorf("flashing mcu %s: %w", rec.Name, err)
				}
			}
			return nil
		},
	}
}

// buildForFlash builds each flavor the records need, once, aborting
// the whole flash on the first failure.
func buildForFlash(ctx context.Context, a *app, records []*mcu.Record, version string) error {
	seen := make(map[string]bool)
	var flavors []string
	for _, rec := range records {
		if rec.Flavor == "" || seen[rec.Flavor] {
			continue
		}
		seen[rec.Flavor] = true
		flavors = append(flavors, rec.Flavor)
	}
	sort.Strings(flavors)
	a.logger.Info("building flavors before flashing", "flavors", flavors)
	for _, name := range flavors {
		if err := a.workspace.Build(ctx, name, version); err != nil {
			return fmt.Errorf("unable to build flavor %s, aborting the flash: %w", name, err)
		}
	}
	return nil
}
