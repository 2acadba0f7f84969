// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/lib/selfupdate"
)

func upgradeCommand() *cli.Command {
	var flags globalFlags
	var tag string
	var pre bool

	return &cli.Command{
		Name:    "upgrade",
		Summary: "Upgrade kqf to a newer release",
		Description: `Download a released kqf binary from GitHub and replace this
executable with it. The previous binary stays next to it with a
.bak suffix.`,
		Usage: "kqf upgrade [--tag <tag>] [--pre] [flags]",
		Examples: []cli.Example{
			{
				Description: "Upgrade to the latest stable release",
				Command:     "kqf upgrade",
			},
			{
				Description: "Install a specific prerelease",
				Command:     "kqf upgrade --tag v0.2.0-rc1 --pre",
			},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("upgrade", pflag.ContinueOnError)
			fs.StringVar(&tag, "tag", "", "release tag to install (default: the latest stable release)")
			fs.BoolVar(&pre, "pre", false, "allow installing a prerelease")
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			logger, err := flags.logger()
			if err != nil {
				return err
			}
			updater := &selfupdate.Updater{Logger: logger}
			return updater.Upgrade(ctx, tag, pre)
		},
	}
}
