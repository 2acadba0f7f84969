// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package cli provides the command-line framework for the kqf CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/kqf/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// [NewLogger] builds the process logger from the global --log-level and
// --log-format flags, and [ExitError] lets a command set a specific exit
// code after printing its own output.
package cli
