// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
)

// flashKatapult hands the archived klipper.bin to katapult's
// flashtool. The mode option picks the transport; interface, device,
// and baud fall back to the record's resolved communication fields.
func (o *Orchestrator) flashKatapult(ctx context.Context, rec *mcu.Record, version string) error {
	opts := rec.FlashOpts
	mode := optDefault(opts, "mode", "can")
	o.logger.Debug("katapult flash", "mcu", rec.Name, "mode", mode)

	var args []string
	switch mode {
	case "can":
		args = []string{
			"-i", optDefault(opts, "interface", rec.CommDevice),
			"-u", optDefault(opts, "uuid", rec.CommID),
		}
	case "usb_serial":
		device := opts.Get("serial")
		if device == "" {
			device = fmt.Sprintf("/dev/serial/by-id/usb-%s_%s_%s-if00",
				optDefault(opts, "usb_product", "katapult"),
				rec.MCUChip,
				optDefault(opts, "usb_id", rec.CommID))
		}
		args = []string{
			"-d", device,
			"-b", optDefault(opts, "serial_baud", rec.CommSpeed),
		}
	case "uart":
		args = []string{
			"-d", optDefault(opts, "serial", rec.CommDevice),
			"-b", optDefault(opts, "serial_baud", rec.CommSpeed),
		}
	default:
		return fmt.Errorf("invalid katapult mode %q for mcu %s", mode, rec.Name)
	}
	if opts.Get("verbose") != "" {
		args = append(args, "-v")
	}
	args = append(args, "-f", filepath.Join(o.store.VersionPath(rec.Flavor, version), "klipper.bin"))
	return o.invokeFlashtool(ctx, opts, args)
}
