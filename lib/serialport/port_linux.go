// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package serialport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Standard rates with a CBAUD constant. Anything else goes through
// BOTHER below; notably Klipper's default 250000 has no Bxxx constant.
var baudConstants = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
}

type devicePort struct {
	file  *os.File
	saved unix.Termios
}

// Open opens the serial device at path without becoming its
// controlling terminal and snapshots its line attributes for Restore.
func Open(path string) (Port, error) {
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}
	attrs, err := unix.IoctlGetTermios(int(file.Fd()), unix.TCGETS)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading line attributes of %s: %w", path, err)
	}
	return &devicePort{file: file, saved: *attrs}, nil
}

func (p *devicePort) fd() int {
	return int(p.file.Fd())
}

// setAttrs applies attributes with tcsetattr's TCSADRAIN semantics:
// queued output transmits before the change takes effect.
func (p *devicePort) setAttrs(attrs *unix.Termios) error {
	return unix.IoctlSetTermios(p.fd(), unix.TCSETSW, attrs)
}

func (p *devicePort) SetSpeed(baud int) error {
	attrs, err := unix.IoctlGetTermios(p.fd(), unix.TCGETS)
	if err != nil {
		return err
	}
	attrs.Cflag &^= unix.CBAUD
	if c, ok := baudConstants[baud]; ok {
		attrs.Cflag |= c
		attrs.Ispeed = c
		attrs.Ospeed = c
	} else {
		// BOTHER carries the literal rate in the speed fields, for
		// rates with no Bxxx constant.
		attrs.Cflag |= unix.BOTHER
		attrs.Ispeed = uint32(baud)
		attrs.Ospeed = uint32(baud)
	}
	if err := p.setAttrs(attrs); err != nil {
		return fmt.Errorf("setting %s to %d baud: %w", p.file.Name(), baud, err)
	}
	return nil
}

func (p *devicePort) SetFlowControl(enabled bool) error {
	attrs, err := unix.IoctlGetTermios(p.fd(), unix.TCGETS)
	if err != nil {
		return err
	}
	if enabled {
		attrs.Cflag |= unix.CRTSCTS
	} else {
		attrs.Cflag &^= unix.CRTSCTS
	}
	return p.setAttrs(attrs)
}

func (p *devicePort) DTR() (bool, error) {
	status, err := unix.IoctlGetInt(p.fd(), unix.TIOCMGET)
	if err != nil {
		return false, err
	}
	return status&unix.TIOCM_DTR != 0, nil
}

func (p *devicePort) SetDTR(asserted bool) error {
	request := uint(unix.TIOCMBIS)
	if !asserted {
		request = uint(unix.TIOCMBIC)
	}
	return unix.IoctlSetPointerInt(p.fd(), request, unix.TIOCM_DTR)
}

func (p *devicePort) Write(data []byte) (int, error) {
	return p.file.Write(data)
}

func (p *devicePort) Drain() error {
	// tcdrain(3) is TCSBRK with a nonzero argument on Linux.
	return unix.IoctlSetInt(p.fd(), unix.TCSBRK, 1)
}

func (p *devicePort) Restore() error {
	saved := p.saved
	return p.setAttrs(&saved)
}

func (p *devicePort) Close() error {
	return p.file.Close()
}
