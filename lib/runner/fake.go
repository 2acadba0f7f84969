// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package runner

import (
	"context"
	"sync"
)

// FakeRunner records every invocation and returns scripted results.
// The zero value succeeds every call with empty output.
//
// FakeRunner is safe for concurrent use, though kqf itself runs
// commands sequentially.
type FakeRunner struct {
	mu sync.Mutex

	// Handle produces the result of each Run call. Nil means succeed
	// with empty output.
	Handle func(cmd Command) (string, error)

	// HandleAttached produces the result of each RunAttached call.
	// Nil means succeed.
	HandleAttached func(cmd Command) error

	calls []Command
}

func (f *FakeRunner) Run(_ context.Context, cmd Command) (string, error) {
	f.record(cmd)
	if f.Handle != nil {
		return f.Handle(cmd)
	}
	return "", nil
}

func (f *FakeRunner) RunAttached(_ context.Context, cmd Command) error {
	f.record(cmd)
	if f.HandleAttached != nil {
		return f.HandleAttached(cmd)
	}
	return nil
}

func (f *FakeRunner) record(cmd Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
}

// Calls returns the recorded invocations in order.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CommandLines returns the recorded invocations as loggable strings,
// convenient for comparing whole sequences in tests.
func (f *FakeRunner) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, call := range calls {
		lines[i] = call.String()
	}
	return lines
}
