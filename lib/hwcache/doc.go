// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package hwcache persists previously observed hardware facts (CAN
// bitrates, stable device identifiers) so that MCU resolution can fall
// back on the last known value when live detection is unavailable.
//
// Entries are keyed by (context, key), where the context names the
// thing observed ("canif:can0", "communications_id") and the key names
// the fact ("baud", "mcu:secondary"). The cache is a convenience
// layer, never a source of truth: a fresh detection always overwrites
// the stored value, and a storage failure degrades to "no cache"
// rather than an error.
package hwcache
