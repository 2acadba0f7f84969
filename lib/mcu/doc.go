// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package mcu describes the microcontrollers KQF manages and resolves
// their identities from the available sources of truth.
//
// A [Record] is everything KQF knows about one MCU: how Klipper talks
// to it, what board and chip it is, and how new firmware gets onto it.
// No single source holds all of that. The user's kqf.yml supplies
// explicit overrides, the Klipper printer configuration supplies the
// communication settings the daemon actually uses, the flavor's kconfig
// supplies the board and chip the firmware was built for, and the
// running system supplies facts like CAN bitrates that live nowhere
// else. [Resolver.Resolve] merges those layers in strict precedence
// order (override, then live configuration, then derivation) and fills
// the gaps by probing hardware and falling back to cached observations.
//
// Resolution never fails: a field that cannot be determined is left
// empty and logged, and the operations that need it report the gap when
// they run.
package mcu
