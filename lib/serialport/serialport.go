// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package serialport provides the low-level serial device control the
// bootloader entry protocols need: line speed changes, DTR pulses,
// and output draining. It is deliberately not a full serial I/O
// library; kqf only ever writes short command sequences and toggles
// modem lines.
package serialport

import "io"

// Port is an open serial device. Operations map one-to-one onto
// termios calls so entry sequences read like their protocol
// descriptions.
type Port interface {
	// SetSpeed sets the input and output line speed in baud. The
	// change waits for queued output first.
	SetSpeed(baud int) error

	// SetFlowControl enables or disables RTS/CTS hardware flow
	// control.
	SetFlowControl(enabled bool) error

	// DTR reports whether the DTR modem line is asserted.
	DTR() (bool, error)

	// SetDTR asserts or clears the DTR modem line.
	SetDTR(asserted bool) error

	// Write queues bytes for transmission.
	io.Writer

	// Drain blocks until queued output has been transmitted.
	Drain() error

	// Restore puts the line attributes back to what they were when
	// the port was opened.
	Restore() error

	io.Closer
}
