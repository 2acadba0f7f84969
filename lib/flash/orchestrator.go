// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Laikulo/klipper-quickflash/lib/buildtool"
	"github.com/Laikulo/klipper-quickflash/lib/clock"
	"github.com/Laikulo/klipper-quickflash/lib/flavor"
	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
	"github.com/Laikulo/klipper-quickflash/lib/serialport"
)

var (
	// ErrNoFlashMethod means resolution produced no flash method for
	// the MCU and the configuration does not supply one either.
	ErrNoFlashMethod = errors.New("no flash method resolved")

	// ErrArtifactMissing means the requested flavor/version snapshot
	// has not been built (or has been pruned).
	ErrArtifactMissing = errors.New("no archived firmware")

	// ErrUnknownMethod means the record carries a flash method this
	// orchestrator does not implement.
	ErrUnknownMethod = errors.New("unknown flash method")

	// ErrUnknownEntryMode means the entry_mode flash option names a
	// bootloader entry protocol this orchestrator does not implement.
	ErrUnknownEntryMode = errors.New("unknown bootloader entry mode")

	// ErrUnsupportedBoard means flash-sdcard.sh does not list the
	// configured board.
	ErrUnsupportedBoard = errors.New("board not supported by flash-sdcard.sh")
)

// Config carries the collaborators an [Orchestrator] needs.
type Config struct {
	// Workspace owns the Klipper checkout's kconfig slot.
	Workspace *flavor.Workspace

	// Store locates archived firmware snapshots.
	Store *flavor.Store

	// Build drives make in the Klipper checkout.
	Build *buildtool.Make

	// Runner launches the flashtool and flash-sdcard.sh.
	Runner runner.Runner

	// Flashtool manages the cached katapult flashtool script.
	Flashtool *Flashtool

	// Clock paces the bootloader entry sequences. Defaults to the
	// system clock.
	Clock clock.Clock

	// OpenPort opens a serial device for bootloader entry. Defaults
	// to [serialport.Open].
	OpenPort func(device string) (serialport.Port, error)

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Orchestrator flashes firmware onto MCUs.
type Orchestrator struct {
	workspace *flavor.Workspace
	store     *flavor.Store
	build     *buildtool.Make
	runner    runner.Runner
	flashtool *Flashtool
	clock     clock.Clock
	openPort  func(device string) (serialport.Port, error)
	logger    *slog.Logger
}

// New builds an Orchestrator from cfg, filling in defaults for the
// clock, port opener, and logger.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		workspace: cfg.Workspace,
		store:     cfg.Store,
		build:     cfg.Build,
		runner:    cfg.Runner,
		flashtool: cfg.Flashtool,
		clock:     cfg.Clock,
		openPort:  cfg.OpenPort,
		logger:    cfg.Logger,
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.openPort == nil {
		o.openPort = serialport.Open
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Flash writes the archived firmware for rec's flavor at version onto
// the MCU. An empty version means latest. When permitEntry is true
// and the record carries an entry_mode flash option, the MCU is
// walked into its bootloader first.
func (o *Orchestrator) Flash(ctx context.Context, rec *mcu.Record, version string, permitEntry bool) error {
	if rec.FlashMethod == "" {
		return fmt.Errorf("%w for mcu %s; set flash_method in the configuration", ErrNoFlashMethod, rec.Name)
	}
	if version == "" {
		version = "latest"
	}
	versionDir := o.store.VersionPath(rec.Flavor, version)
	if _, err := os.Stat(versionDir); err != nil {
		return fmt.Errorf("%w for flavor %s version %s; build it first", ErrArtifactMissing, rec.Flavor, version)
	}
	if permitEntry && rec.FlashOpts.Has("entry_mode") {
		if err := o.EnterBootloader(ctx, rec); err != nil {
			return err
		}
	}
	o.logger.Info("flashing mcu",
		"mcu", rec.Name,
		"flavor", rec.Flavor,
		"version", version,
		"method", rec.FlashMethod)
	switch rec.FlashMethod {
	case mcu.MethodMake:
		return o.flashMake(ctx, rec, version)
	case mcu.MethodKatapult:
		return o.flashKatapult(ctx, rec, version)
	case mcu.MethodSDCard:
		return o.flashSDCard(ctx, rec, version)
	case mcu.MethodNone:
		o.logger.Info("flash method is none, leaving the mcu alone", "mcu", rec.Name)
		return nil
	default:
		return fmt.Errorf("%w %q for mcu %s", ErrUnknownMethod, rec.FlashMethod, rec.Name)
	}
}

// optDefault reads key from opts, falling back to def when the option
// is absent. An option explicitly set to the empty string wins over
// the fallback.
func optDefault(opts mcu.Opts, key, def string) string {
	if v, ok := opts.Lookup(key); ok {
		return v
	}
	return def
}
