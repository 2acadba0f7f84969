// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/serialport"
)

const (
	// rateSwitchDelay lets the USB CDC stack register the 1200 baud
	// rate change before the DTR pulse starts.
	rateSwitchDelay = 250 * time.Millisecond

	// debounceDelay separates the edges of the DTR pulse.
	debounceDelay = 100 * time.Millisecond

	// settleDelay gives a rebooting MCU time to re-enumerate before
	// the flash method opens its device node.
	settleDelay = 2 * time.Second
)

// bootloaderMagic asks a Klipper MCU with serial bootloader support
// to reboot into its bootloader. The 0x1c byte is part of the
// protocol, not a typo.
var bootloaderMagic = []byte("~ \x1c Request Serial Bootloader!! ~")

// EnterBootloader walks rec's MCU into its bootloader using the
// entry_mode flash option, then waits for the device to settle. The
// noop mode succeeds without touching the device.
func (o *Orchestrator) EnterBootloader(ctx context.Context, rec *mcu.Record) error {
	mode := rec.FlashOpts.Get("entry_mode")
	o.logger.Debug("entering bootloader", "mcu", rec.Name, "mode", mode)
	switch mode {
	case "usb_serial":
		if err := o.enterUSBSerial(rec); err != nil {
			return err
		}
	case "serial":
		if err := o.enterSerial(rec); err != nil {
			return err
		}
	case "can":
		if err := o.enterCAN(ctx, rec); err != nil {
			return err
		}
	case "noop":
		return nil
	default:
		return fmt.Errorf("%w %q for mcu %s", ErrUnknownEntryMode, mode, rec.Name)
	}
	o.logger.Debug("waiting for the mcu to settle", "mcu", rec.Name)
	o.clock.Sleep(settleDelay)
	return nil
}

// enterUSBSerial performs the Arduino-style 1200 baud DTR pulse. Once
// the pulse is underway the device is expected to drop off the bus,
// so errors after the initial DTR read count as success.
func (o *Orchestrator) enterUSBSerial(rec *mcu.Record) error {
	opts := rec.FlashOpts
	device := opts.Get("entry_serial")
	if device == "" {
		device = fmt.Sprintf("/dev/serial/by-id/usb-%s_%s_%s-if00",
			optDefault(opts, "entry_usb_product", "Klipper"),
			rec.MCUChip,
			optDefault(opts, "entry_usb_id", rec.CommID))
	}
	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("serial device %s for bootloader entry does not exist", device)
	}
	port, err := o.openPort(device)
	if err != nil {
		return fmt.Errorf("opening %s for bootloader entry: %w", device, err)
	}
	defer port.Close()

	if err := port.SetSpeed(1200); err != nil {
		return err
	}
	if err := port.SetFlowControl(false); err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return err
	}
	o.clock.Sleep(rateSwitchDelay)
	asserted, err := port.DTR()
	if err != nil {
		return err
	}
	if err := o.pulseDTR(port, asserted); err != nil {
		o.logger.Debug("device went away during the DTR pulse, assuming reboot is underway",
			"device", device, "error", err)
	}
	return nil
}

// pulseDTR drives the DTR line high then low. A deasserted line is
// cleared first so it starts from a known state.
func (o *Orchestrator) pulseDTR(port serialport.Port, asserted bool) error {
	if !asserted {
		if err := port.SetDTR(false); err != nil {
			return err
		}
		if err := port.Drain(); err != nil {
			return err
		}
		o.clock.Sleep(debounceDelay)
	}
	if err := port.SetDTR(true); err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return err
	}
	o.clock.Sleep(debounceDelay)
	if err := port.SetDTR(false); err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return err
	}
	o.clock.Sleep(debounceDelay)
	return port.Drain()
}

// enterSerial writes Klipper's bootloader request string at the MCU's
// console baud rate, then puts the port back the way it was.
func (o *Orchestrator) enterSerial(rec *mcu.Record) error {
	opts := rec.FlashOpts
	device := opts.Get("entry_serial")
	if device == "" {
		device = opts.Get("serial")
	}
	if device == "" {
		device = rec.CommDevice
	}
	if device == "" {
		return fmt.Errorf("no serial device known for bootloader entry on mcu %s", rec.Name)
	}
	baudText := opts.Get("entry_baud")
	if baudText == "" {
		baudText = opts.Get("baud")
	}
	if baudText == "" {
		baudText = rec.CommSpeed
	}
	baud, err := strconv.Atoi(baudText)
	if err != nil {
		return fmt.Errorf("bad bootloader entry baud %q for mcu %s", baudText, rec.Name)
	}
	port, err := o.openPort(device)
	if err != nil {
		return fmt.Errorf("opening %s for bootloader entry: %w", device, err)
	}
	defer port.Close()

	if err := port.SetSpeed(baud); err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return err
	}
	if _, err := port.Write(bootloaderMagic); err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return err
	}
	if err := port.Restore(); err != nil {
		return err
	}
	return port.Drain()
}

// enterCAN asks katapult's flashtool to send the reboot request frame.
func (o *Orchestrator) enterCAN(ctx context.Context, rec *mcu.Record) error {
	opts := rec.FlashOpts
	args := []string{
		"-i", optDefault(opts, "interface", rec.CommDevice),
		"-u", optDefault(opts, "uuid", rec.CommID),
		"-r",
	}
	return o.invokeFlashtool(ctx, opts, args)
}
