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
	"github.com/Laikulo/klipper-quickflash/lib/buildtool"
	"github.com/Laikulo/klipper-quickflash/lib/clock"
	"github.com/Laikulo/klipper-quickflash/lib/config"
	"github.com/Laikulo/klipper-quickflash/lib/flash"
	"github.com/Laikulo/klipper-quickflash/lib/flavor"
	"github.com/Laikulo/klipper-quickflash/lib/hwcache"
	"github.com/Laikulo/klipper-quickflash/lib/hwprobe"
	"github.com/Laikulo/klipper-quickflash/lib/klipper"
	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// globalFlags are accepted by every leaf command. The framework parses
// flags per command, so each leaf registers them into its own set.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "path to kqf.yml (default $KQF_CONFIG, then ~/.config/kqf/kqf.yml)")
	fs.StringVar(&g.logLevel, "log-level", "info", "log verbosity: debug, info, warn, or error")
	fs.StringVar(&g.logFormat, "log-format", "", "log output format: text or json (default picked by terminal)")
}

// path returns the configuration file to use.
func (g *globalFlags) path() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.DefaultPath()
}

// logger builds the process logger from the parsed global flags. The
// logger the framework hands to Run predates flag parsing, so leaf
// commands call this instead.
func (g *globalFlags) logger() (*slog.Logger, error) {
	return cli.NewLogger(g.logLevel, g.logFormat)
}

// app bundles the collaborators a command needs, wired from one loaded
// configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	run       runner.Runner
	store     *flavor.Store
	build     *buildtool.Make
	workspace *flavor.Workspace
	cache     *hwcache.Cache
	resolver  *mcu.Resolver
	flash     *flash.Orchestrator

	// klipperNames are the MCUs the printer configuration declares, in
	// its order.
	klipperNames []string
}

// newApp loads the configuration and wires the object graph behind the
// kqf commands. The hardware cache is optional: when it cannot be
// opened, resolution runs without cached observations.
func newApp(flags *globalFlags) (*app, error) {
	logger, err := flags.logger()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(flags.path())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration %s: %w", flags.path(), err)
	}

	a := &app{cfg: cfg, logger: logger, run: runner.Exec()}
	a.store = flavor.NewStore(cfg.FlavorsDir, cfg.FirmwareDir)
	a.build = buildtool.New(cfg.KlipperRepo, a.run, logger)
	a.workspace = flavor.NewWorkspace(cfg.KlipperRepo, a.store, a.build, logger, nil)

	a.resolver = &mcu.Resolver{
		Kconfig: a.store,
		Prober:  hwprobe.New(a.run),
		Logger:  logger,
	}
	if cfg.KlipperConfig != "" {
		live, err := klipper.ParseFile(cfg.KlipperConfig)
		if err != nil {
			return nil, fmt.Errorf("reading printer configuration %s: %w", cfg.KlipperConfig, err)
		}
		a.resolver.Live = live.MCU
		a.klipperNames = live.MCUNames()
	}
	if cache, err := hwcache.Open(cfg.CachePath, logger, clock.Real()); err != nil {
		logger.Warn("hardware cache unavailable, continuing without it",
			"path", cfg.CachePath, "error", err)
	} else {
		a.cache = cache
		a.resolver.Cache = cache
	}

	a.flash = flash.New(flash.Config{
		Workspace: a.workspace,
		Store:     a.store,
		Build:     a.build,
		Runner:    a.run,
		Flashtool: &flash.Flashtool{Path: cfg.FlashtoolPath, Logger: logger},
		Logger:    logger,
	})
	return a, nil
}

// Close releases the hardware cache.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing the hardware cache", "error", err)
		}
	}
}

// inventory returns the names of every known MCU: those the printer
// configuration declares plus those with a kqf.yml section, sorted.
func (a *app) inventory() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range a.klipperNames {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range a.cfg.MCUs {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// resolve produces the record for one MCU, applying its kqf.yml
// overrides when present.
func (a *app) resolve(ctx context.Context, name string) *mcu.Record {
	var override mcu.ConfigOverride
	if section := a.cfg.MCUs[name]; section != nil {
		override = section.Override()
	}
	return a.resolver.Resolve(ctx, name, override)
}
