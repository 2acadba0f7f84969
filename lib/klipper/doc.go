// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package klipper reads the printer daemon's configuration (printer.cfg)
// to learn which MCUs it drives and how it talks to them.
//
// The format is Klipper's INI dialect: [section] headers, "key: value"
// or "key = value" settings, full-line # and ; comments, indented
// continuation lines (multi-line values, which kqf skips since only
// scalar keys matter here), and [include <glob>] directives resolved
// relative to the including file and expanded in sorted order. Each
// file is read at most once, so mutually including files do not loop.
package klipper
