// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package mcu

import (
	"fmt"
	"strings"
)

// Communication types a Klipper host uses to reach an MCU.
const (
	CommSerial = "serial"
	CommCAN    = "can"
)

// Flash methods KQF knows how to dispatch.
const (
	MethodMake     = "make"
	MethodKatapult = "katapult"
	MethodSDCard   = "sdcard"
	MethodNone     = "none"
)

// Opts is an ordered set of flash options. Order matters because some
// of the options become positional command-line arguments (make flash
// passes var_* assignments through in the order the user wrote them),
// so a plain map will not do. Set replaces in place; new keys append.
type Opts struct {
	pairs []optPair
}

type optPair struct {
	key   string
	value string
}

// Set stores value under key, replacing an existing entry in place or
// appending a new one at the end.
func (o *Opts) Set(key, value string) {
	for i := range o.pairs {
		if o.pairs[i].key == key {
			o.pairs[i].value = value
			return
		}
	}
	o.pairs = append(o.pairs, optPair{key: key, value: value})
}

// Get returns the value stored under key, or "" if absent.
func (o Opts) Get(key string) string {
	v, _ := o.Lookup(key)
	return v
}

// Lookup returns the value stored under key and whether it is present.
func (o Opts) Lookup(key string) (string, bool) {
	for _, p := range o.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (o Opts) Has(key string) bool {
	_, ok := o.Lookup(key)
	return ok
}

// Keys returns the option keys in insertion order.
func (o Opts) Keys() []string {
	keys := make([]string, len(o.pairs))
	for i, p := range o.pairs {
		keys[i] = p.key
	}
	return keys
}

// Len returns the number of options.
func (o Opts) Len() int {
	return len(o.pairs)
}

// Merge applies every entry of other on top of o, in other's order.
func (o *Opts) Merge(other Opts) {
	for _, p := range other.pairs {
		o.Set(p.key, p.value)
	}
}

// Clone returns an independent copy.
func (o Opts) Clone() Opts {
	c := Opts{pairs: make([]optPair, len(o.pairs))}
	copy(c.pairs, o.pairs)
	return c
}

// Record is one MCU's resolved identity: its name from the printer
// configuration, the communication settings Klipper uses to reach it,
// the board and chip it carries, and how to flash it.
type Record struct {
	Name string

	// Communication, as Klipper sees it.
	CommType   string // serial or can
	CommID     string // serial device path or CAN UUID
	CommDevice string // serial device path or CAN network interface
	CommSpeed  string // serial baud or CAN bitrate

	// Hardware, as the flavor was configured for it.
	MCUType string // board directory, e.g. stm32, rp2040, linux
	MCUChip string // exact part, e.g. stm32f446xx

	// Flashing.
	Bootloader  string
	FlashMethod string
	FlashOpts   Opts

	Flavor string
}

// ConfigOverride is the subset of a Record the user states explicitly
// in kqf.yml. Set fields win over every other source.
type ConfigOverride struct {
	Flavor      string
	MCUType     string
	MCUChip     string
	CommType    string
	CommID      string
	CommDevice  string
	CommSpeed   string
	Bootloader  string
	FlashMethod string
	FlashOpts   Opts
}

// Format renders the record for human inspection, one field per line.
func (r *Record) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name:      '%s'\n", r.Name)
	fmt.Fprintf(&b, "flavor:    '%s'\n", r.Flavor)
	fmt.Fprintf(&b, "mcu:\n")
	fmt.Fprintf(&b, "  type:    '%s'\n", r.MCUType)
	fmt.Fprintf(&b, "  chip:    '%s'\n", r.MCUChip)
	fmt.Fprintf(&b, "comms:\n")
	fmt.Fprintf(&b, "  type:    '%s'\n", r.CommType)
	fmt.Fprintf(&b, "  id:      '%s'\n", r.CommID)
	fmt.Fprintf(&b, "  device:  '%s'\n", r.CommDevice)
	speed := r.CommSpeed
	if speed == "" {
		speed = "N/A"
	}
	fmt.Fprintf(&b, "  speed:   '%s'\n", speed)
	fmt.Fprintf(&b, "flashing:\n")
	fmt.Fprintf(&b, "  method:  '%s'\n", r.FlashMethod)
	fmt.Fprintf(&b, "  options:%s\n", r.formatOpts())
	fmt.Fprintf(&b, "  loader:  '%s'\n", r.Bootloader)
	return b.String()
}

func (r *Record) formatOpts() string {
	if r.FlashOpts.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, key := range r.FlashOpts.Keys() {
		fmt.Fprintf(&b, "\n    %s: %s", key, r.FlashOpts.Get(key))
	}
	return b.String()
}
