// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// flashSDCard drives Klipper's flash-sdcard.sh helper. The board
// option is mandatory and is checked against the helper's own board
// list before anything touches the device.
func (o *Orchestrator) flashSDCard(ctx context.Context, rec *mcu.Record, version string) error {
	opts := rec.FlashOpts
	board := opts.Get("board")
	if board == "" {
		return fmt.Errorf("sdcard flashing needs a flash_board option for mcu %s", rec.Name)
	}
	boards, err := o.sdcardBoards(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(boards, board) {
		return fmt.Errorf("%w: %q (see scripts/flash-sdcard.sh -l)", ErrUnsupportedBoard, board)
	}
	device := optDefault(opts, "device", rec.CommDevice)
	if device == "" {
		return fmt.Errorf("sdcard flashing needs a device for mcu %s", rec.Name)
	}
	versionDir := o.store.VersionPath(rec.Flavor, version)
	return o.runner.RunAttached(ctx, runner.Command{
		Name: o.sdcardScript(),
		Args: []string{
			"-f", filepath.Join(versionDir, "klipper.bin"),
			"-d", filepath.Join(versionDir, "klipper.dict"),
			device,
			board,
		},
		Dir: o.build.Repo(),
	})
}

// sdcardBoards parses the board list printed by flash-sdcard.sh -l:
// a header line followed by one indented board name per line.
func (o *Orchestrator) sdcardBoards(ctx context.Context) ([]string, error) {
	out, err := o.runner.Run(ctx, runner.Command{
		Name: o.sdcardScript(),
		Args: []string{"-l"},
		Dir:  o.build.Repo(),
	})
	if err != nil {
		return nil, fmt.Errorf("listing flash-sdcard.sh boards: %w", err)
	}
	var boards []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		boards = append(boards, line)
	}
	return boards, nil
}

func (o *Orchestrator) sdcardScript() string {
	return filepath.Join(o.build.Repo(), "scripts", "flash-sdcard.sh")
}
