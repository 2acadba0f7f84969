// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package process provides the binary entrypoint error helper for the
// kqf binary. Fatal centralizes the one legitimate raw-stderr pattern
// that exists before the structured logger is initialized: reporting an
// unrecoverable error from main() and exiting non-zero.
package process
