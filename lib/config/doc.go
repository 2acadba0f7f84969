// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package config provides YAML configuration loading for kqf.
//
// Configuration is loaded from a single file, by default
// ~/.config/kqf/kqf.yml, overridable with the --config flag or the
// KQF_CONFIG environment variable. Decoding is strict: unknown keys
// are rejected so a typo never silently turns into a default.
//
// Two locations are autodetected when left unset in the file (and
// autodetect is not disabled): the Klipper source tree (~/klipper,
// ~/src/klipper, ~/vcs/klipper) and the printer configuration
// (~/printer_data/config/printer.cfg, /etc/klipper/printer.cfg).
//
// Variable expansion is performed on path fields after loading:
// a leading ~ and ${VAR} / ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- paths plus per-MCU override sections
//   - [MCUConfig] -- one MCU's explicit overrides, including ordered
//     flash_* options
//   - [Default], [LoadFile], [DefaultPath]
package config
