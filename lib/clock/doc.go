// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now or time.Sleep directly. In production, Real() provides the
// standard library behavior. In tests, Fake() provides a deterministic
// clock whose Sleep returns immediately while recording the requested
// durations, so procedures built around physical settle delays (such as
// bootloader entry) run instantly and the test can assert on the exact
// delays requested.
//
// Add a Clock field to structs that use time:
//
//	type Entry struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	e := &Entry{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	e := &Entry{clock: c}
//	// ... run the procedure ...
//	got := c.Slept() // durations requested, in order
package clock
