// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package runner provides the subprocess capability used by every
// component that shells out (the Klipper make wrapper, the Katapult
// flashtool, the sdcard helper, editors). Production code injects
// Exec(); tests inject a FakeRunner with scripted results and assert
// on the recorded invocations instead of driving real tools.
package runner
