// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package hwprobe probes the live system for facts about MCU
// communication channels: the configured bitrate of a CAN network
// interface (via ip link introspection) and the serial number of the
// USB device backing a network interface (via sysfs traversal).
//
// Probes are best-effort. Callers treat a failed probe as "fact not
// available" and fall back to the hardware cache; a probe failure is
// never fatal to MCU resolution.
package hwprobe
