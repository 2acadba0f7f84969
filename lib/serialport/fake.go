// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package serialport

import (
	"bytes"
	"fmt"
)

// FakePort records every operation so entry-sequence tests can assert
// the exact protocol. The zero value is an open port with DTR clear.
type FakePort struct {
	// Ops lists the operations performed, e.g. "speed 1200",
	// "flow off", "dtr on", "write", "drain", "restore", "close".
	Ops []string

	// DTRState is the modem line; SetDTR writes it, DTR reads it.
	DTRState bool

	// Written accumulates everything passed to Write.
	Written bytes.Buffer

	// FailFrom, when positive, fails every operation from that
	// 1-based position in Ops with Err, simulating the device
	// dropping off the bus mid-sequence. Err must be set.
	FailFrom int
	Err      error

	Closed bool
}

func (f *FakePort) op(name string) error {
	f.Ops = append(f.Ops, name)
	if f.FailFrom > 0 && len(f.Ops) >= f.FailFrom && f.Err != nil {
		return f.Err
	}
	return nil
}

func (f *FakePort) SetSpeed(baud int) error {
	return f.op(fmt.Sprintf("speed %d", baud))
}

func (f *FakePort) SetFlowControl(enabled bool) error {
	if enabled {
		return f.op("flow on")
	}
	return f.op("flow off")
}

func (f *FakePort) DTR() (bool, error) {
	return f.DTRState, nil
}

func (f *FakePort) SetDTR(asserted bool) error {
	var err error
	if asserted {
		err = f.op("dtr on")
	} else {
		err = f.op("dtr off")
	}
	if err == nil {
		f.DTRState = asserted
	}
	return err
}

func (f *FakePort) Write(data []byte) (int, error) {
	if err := f.op("write"); err != nil {
		return 0, err
	}
	return f.Written.Write(data)
}

func (f *FakePort) Drain() error {
	return f.op("drain")
}

func (f *FakePort) Restore() error {
	return f.op("restore")
}

func (f *FakePort) Close() error {
	f.Closed = true
	return f.op("close")
}
