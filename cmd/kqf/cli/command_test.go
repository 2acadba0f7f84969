// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "kqf",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "flavor",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "flavor"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"flavor"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "flavor" {
		t.Errorf("dispatched to %q, want %q", called, "flavor")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "kqf",
		Subcommands: []*Command{
			{
				Name: "flavor",
				Subcommands: []*Command{
					{
						Name: "build",
						Run: func(_ context.Context, args []string, _ *slog.Logger) error {
							called = "flavor build"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"flavor", "build", "mainboard"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "flavor build" {
		t.Errorf("dispatched to %q, want %q", called, "flavor build")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "mainboard" {
		t.Errorf("args = %v, want [mainboard]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var version string
	var target string

	command := &Command{
		Name: "build",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			flagSet.StringVar(&version, "version", "latest", "firmware version")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--version", "v0.12", "mainboard"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if version != "v0.12" {
		t.Errorf("version = %q, want %q", version, "v0.12")
	}
	if target != "mainboard" {
		t.Errorf("target = %q, want %q", target, "mainboard")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "build",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			flagSet.Bool("all", false, "build every flavor")
			flagSet.String("version", "latest", "firmware version")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--verison"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --version") {
		t.Errorf("error = %q, want suggestion for '--version'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "verison") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "build",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			flagSet.Bool("all", false, "build every flavor")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "kqf",
		Subcommands: []*Command{
			{Name: "flavor"},
			{Name: "flash"},
			{Name: "version"},
		},
	}

	err := root.Execute(context.Background(), []string{"flavr"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"flavor\"") {
		t.Errorf("error = %q, want suggestion for 'flavor'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "kqf",
		Subcommands: []*Command{
			{Name: "flavor"},
			{Name: "flash"},
		},
	}

	err := root.Execute(context.Background(), []string{"zzzzzzz"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "kqf",
				Summary: "Klipper firmware build and flash automation",
				Subcommands: []*Command{
					{Name: "flavor", Summary: "Manage build flavors"},
				},
			}

			err := root.Execute(context.Background(), []string{helpArg}, testLogger())
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "kqf",
		Subcommands: []*Command{
			{Name: "flavor", Summary: "Manage build flavors"},
		},
	}

	err := root.Execute(context.Background(), []string{}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "kqf",
		Description: "Klipper firmware build and flash automation.",
		Subcommands: []*Command{
			{Name: "mcu-info", Summary: "Show resolved MCU records"},
			{Name: "flavor", Summary: "Manage build flavors"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Show every MCU KQF knows about",
				Command:     "kqf mcu-info",
			},
			{
				Description: "Build all flavors and flash every MCU",
				Command:     "kqf flash --all --build",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Klipper firmware build and flash automation.",
		"Usage:",
		"kqf <command> [flags]",
		"Commands:",
		"mcu-info",
		"Show resolved MCU records",
		"flavor",
		"Manage build flavors",
		"Examples:",
		"kqf mcu-info",
		"kqf flash --all --build",
		"Run 'kqf <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "build",
		Summary: "Build flavor firmware",
		Usage:   "kqf flavor build [--all | <flavor>] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
			flagSet.String("version", "latest", "firmware version to archive as")
			flagSet.Bool("all", false, "build every flavor")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"kqf flavor build [--all | <flavor>] [flags]",
		"Flags:",
		"version",
		"all",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "kqf"}
	flavor := &Command{Name: "flavor", parent: root}
	build := &Command{Name: "build", parent: flavor}

	if got := root.fullName(); got != "kqf" {
		t.Errorf("root.fullName() = %q, want %q", got, "kqf")
	}
	if got := flavor.fullName(); got != "kqf flavor" {
		t.Errorf("flavor.fullName() = %q, want %q", got, "kqf flavor")
	}
	if got := build.fullName(); got != "kqf flavor build" {
		t.Errorf("build.fullName() = %q, want %q", got, "kqf flavor build")
	}
}
