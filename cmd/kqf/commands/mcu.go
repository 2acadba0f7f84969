// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
)

func mcuInfoCommand() *cli.Command {
	var flags globalFlags

	return &cli.Command{
		Name:    "mcu-info",
		Summary: "Show resolved MCU records",
		Description: `Resolve every known MCU and print the result.

MCUs come from the printer configuration and from the mcus section
of kqf.yml. Resolution merges explicit overrides, the printer
configuration, the flavor's saved build profile, and hardware probes
into one record per MCU, exactly as a flash would see it.`,
		Usage: "kqf mcu-info [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("mcu-info", pflag.ContinueOnError)
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			a, err := newApp(&flags)
			if err != nil {
				return err
			}
			defer a.Close()

			names := a.inventory()
			if len(names) == 0 {
				return fmt.Errorf("no MCUs found; add an mcus section to kqf.yml or point klipper_config at printer.cfg")
			}
			for _, name := range names {
				fmt.Print(a.resolve(ctx, name).Format())
				fmt.Println("---")
			}
			return nil
		},
	}
}
