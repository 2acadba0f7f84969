// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/lib/buildtool"
	"github.com/Laikulo/klipper-quickflash/lib/config"
	"github.com/Laikulo/klipper-quickflash/lib/flavor"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestCommandTree walks the full command tree and validates the
// invariants the help and dispatch machinery relies on: every command
// is named and summarized, every leaf is runnable, and sibling names
// are unique so dispatch is unambiguous.
func TestCommandTree(t *testing.T) {
	root := Root()
	walkCommands(root, nil, func(command *cli.Command, path []string) {
		name := strings.Join(path, " ")
		if command.Name == "" {
			t.Errorf("%s: command with an empty name", name)
		}
		if command.Run == nil && len(command.Subcommands) == 0 {
			t.Errorf("%s: has neither Run nor Subcommands", name)
		}
		if command != root && command.Summary == "" {
			t.Errorf("%s: missing Summary", name)
		}
		seen := make(map[string]bool)
		for _, sub := range command.Subcommands {
			if seen[sub.Name] {
				t.Errorf("%s: duplicate subcommand %q", name, sub.Name)
			}
			seen[sub.Name] = true
		}
	})
}

func TestRootSubcommandNames(t *testing.T) {
	var got []string
	for _, sub := range Root().Subcommands {
		got = append(got, sub.Name)
	}
	want := []string{"mcu-info", "flavor", "flash", "config", "upgrade", "version"}
	if !slices.Equal(got, want) {
		t.Errorf("root subcommands = %v, want %v", got, want)
	}
}

// walkCommands recursively visits every command in the tree, calling
// visit for each node with the accumulated command path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = command.Name
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}

// TestInventoryMergesPrinterAndConfig covers the union of MCU names:
// the printer configuration's declarations plus kqf.yml sections,
// deduplicated and sorted.
func TestInventoryMergesPrinterAndConfig(t *testing.T) {
	a := &app{
		cfg: &config.Config{MCUs: map[string]*config.MCUConfig{
			"mcu":      {Flavor: "main"},
			"toolhead": {Flavor: "th"},
		}},
		klipperNames: []string{"mcu", "display"},
	}
	got := a.inventory()
	want := []string{"display", "mcu", "toolhead"}
	if !slices.Equal(got, want) {
		t.Errorf("inventory() = %v, want %v", got, want)
	}
}

func TestGlobalFlagsConfigPath(t *testing.T) {
	t.Setenv("KQF_CONFIG", "/etc/kqf/kqf.yml")

	var flags globalFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.register(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if got := flags.path(); got != "/etc/kqf/kqf.yml" {
		t.Errorf("path() = %q, want the KQF_CONFIG fallback", got)
	}
	if flags.logLevel != "info" {
		t.Errorf("default log level = %q, want info", flags.logLevel)
	}

	if err := fs.Parse([]string{"--config", "/tmp/other.yml"}); err != nil {
		t.Fatal(err)
	}
	if got := flags.path(); got != "/tmp/other.yml" {
		t.Errorf("path() = %q, want the explicit --config value", got)
	}
}

// buildTestApp wires an app over a fake runner and a scratch Klipper
// tree whose out/ directory already holds build artifacts, so that
// workspace builds succeed without running make.
func buildTestApp(t *testing.T) (*app, *runner.FakeRunner) {
	t.Helper()
	root := t.TempDir()
	repo := filepath.Join(root, "klipper")
	outDir := filepath.Join(repo, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"klipper.bin", "klipper.dict"} {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	logger := testLogger()
	run := &runner.FakeRunner{}
	store := flavor.NewStore(filepath.Join(root, "flavors"), filepath.Join(root, "firmware"))
	build := buildtool.New(repo, run, logger)
	a := &app{
		cfg:       &config.Config{},
		logger:    logger,
		run:       run,
		store:     store,
		build:     build,
		workspace: flavor.NewWorkspace(repo, store, build, logger, nil),
	}
	return a, run
}

// captureStdout runs fn with os.Stdout redirected into a pipe and
// returns what it printed alongside fn's error.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	runErr := fn()
	os.Stdout = orig
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), runErr
}

func TestBuildFlavorsSummary(t *testing.T) {
	a, _ := buildTestApp(t)
	out, err := captureStdout(t, func() error {
		return buildFlavors(context.Background(), a, []string{"alpha", "beta"}, "latest")
	})
	if err != nil {
		t.Fatalf("buildFlavors: %v", err)
	}
	if !strings.Contains(out, "Successful Flavors: alpha,beta\n") {
		t.Errorf("summary missing successful flavors:\n%s", out)
	}
	if !strings.Contains(out, "Failed Flavors: \n") {
		t.Errorf("summary should list no failed flavors:\n%s", out)
	}
	archived := filepath.Join(a.store.VersionPath("alpha", "latest"), "klipper.bin")
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("archived firmware missing: %v", err)
	}
}

func TestBuildFlavorsPartialFailure(t *testing.T) {
	a, run := buildTestApp(t)

	// The second firmware build breaks; every make before and after
	// still succeeds, as a real compile error would behave.
	var builds int
	run.HandleAttached = func(cmd runner.Command) error {
		if len(cmd.Args) == 1 && cmd.Args[0] == "all" {
			builds++
			if builds == 2 {
				return errors.New("cc1: compile failed")
			}
		}
		return nil
	}

	out, err := captureStdout(t, func() error {
		return buildFlavors(context.Background(), a, []string{"alpha", "beta"}, "latest")
	})
	var exit *cli.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("want *cli.ExitError, got %v", err)
	}
	if exit.Code != 1 {
		t.Errorf("exit code = %d, want 1", exit.Code)
	}
	if !strings.Contains(out, "Successful Flavors: alpha\n") {
		t.Errorf("summary should report alpha as built:\n%s", out)
	}
	if !strings.Contains(out, "Failed Flavors: beta\n") {
		t.Errorf("summary should report beta as failed:\n%s", out)
	}
}

// writeTestConfig writes a minimal valid kqf.yml into a temp directory
// and returns its path. The extra string is appended verbatim, for an
// mcus section.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	fmt.Fprintf(&b, "klipper_repo: %s\n", filepath.Join(dir, "klipper"))
	fmt.Fprintf(&b, "flavors_dir: %s\n", filepath.Join(dir, "flavors"))
	fmt.Fprintf(&b, "firmware_dir: %s\n", filepath.Join(dir, "firmware"))
	fmt.Fprintf(&b, "cache_path: %s\n", filepath.Join(dir, "cache.db"))
	b.WriteString(extra)
	path := filepath.Join(dir, "kqf.yml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFlashRejectsAllWithNames(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	err := Root().Execute(context.Background(),
		[]string{"flash", "--config", cfgPath, "--all", "mainboard"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "both --all and a list of MCUs") {
		t.Fatalf("want the mutual exclusion error, got %v", err)
	}
}

func TestFlashRequiresTargets(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	err := Root().Execute(context.Background(),
		[]string{"flash", "--config", cfgPath}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "no MCUs are specified for flashing") {
		t.Fatalf("want the no-targets error, got %v", err)
	}
}

func TestFlashUnknownMCU(t *testing.T) {
	cfgPath := writeTestConfig(t, "mcus:\n  mainboard:\n    flavor: main\n")
	err := Root().Execute(context.Background(),
		[]string{"flash", "--config", cfgPath, "ghost"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), `the MCU configuration "ghost" could not be found`) {
		t.Fatalf("want the unknown-MCU error, got %v", err)
	}
}
