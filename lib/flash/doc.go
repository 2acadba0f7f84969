// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package flash carries a resolved MCU from archived firmware to
// running firmware.
//
// [Orchestrator.Flash] is the entry point: it verifies the requested
// snapshot exists, optionally walks the MCU into its bootloader
// first, and dispatches on the record's flash method. The methods
// differ a lot in mechanism -- make drives Klipper's own flash
// target inside the build workspace, katapult drives the downloaded
// flashtool script, sdcard drives Klipper's flash-sdcard.sh helper --
// but they all consume the same resolved record and the same
// snapshot layout.
//
// Bootloader entry is its own small protocol family (a 1200 baud DTR
// pulse for USB devices, a magic byte string for hardware serial, a
// katapult reboot request over CAN). The sequences run over the
// serialport capability with delays from an injected clock, so tests
// can assert them step by step without hardware.
package flash
