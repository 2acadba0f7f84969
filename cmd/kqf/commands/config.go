// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/Laikulo/klipper-quickflash/cmd/kqf/cli"
	"github.com/Laikulo/klipper-quickflash/lib/config"
	"github.com/Laikulo/klipper-quickflash/lib/editor"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Show, edit, or create the configuration",
		Subcommands: []*cli.Command{
			configShowCommand(),
			configEditCommand(),
			configWizardCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	var flags globalFlags

	return &cli.Command{
		Name:    "show",
		Summary: "Print the effective configuration",
		Description: `Print the configuration as kqf sees it after defaults, path
expansion, and autodetection have been applied. The output is
loadable kqf.yml.`,
		Usage: "kqf config show [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			cfg, err := config.LoadFile(flags.path())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("# effective configuration from %s\n", flags.path())
			os.Stdout.Write(data)
			return nil
		},
	}
}

func configEditCommand() *cli.Command {
	var flags globalFlags

	return &cli.Command{
		Name:    "edit",
		Summary: "Open the configuration in an editor",
		Usage:   "kqf config edit [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("edit", pflag.ContinueOnError)
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			path := flags.path()
			// The file is opened without loading it: a configuration
			// broken enough to fail parsing is exactly the one the
			// user needs the editor for.
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no configuration at %s; run 'kqf config wizard' to create one", path)
				}
				return err
			}
			return editor.Launch(ctx, runner.Exec(), path)
		},
	}
}

func configWizardCommand() *cli.Command {
	var flags globalFlags

	return &cli.Command{
		Name:    "wizard",
		Summary: "Create the configuration interactively",
		Description: `Walk through creating kqf.yml when it does not exist yet: pick a
starting point (a commented default or an empty file) and
optionally open it in an editor.`,
		Usage: "kqf config wizard [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("wizard", pflag.ContinueOnError)
			flags.register(fs)
			return fs
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			return runWizard(ctx, &flags)
		},
	}
}

func runWizard(ctx context.Context, flags *globalFlags) error {
	path := flags.path()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "The configuration already exists at %s.\n", path)
		fmt.Fprintln(os.Stderr, "Edit it with 'kqf config edit' or inspect it with 'kqf config show'.")
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal; create %s by hand or rerun the wizard interactively", path)
	}

	answer, err := ask(fmt.Sprintf(
		"KQF's configuration file does not exist at %s\nWould you like to create it", path), 'y', 'n')
	if err != nil {
		return err
	}
	if answer != 'y' {
		fmt.Fprintln(os.Stderr, "The KQF wizard requires a config file, KQF will now exit...")
		fmt.Fprintln(os.Stderr, "Hint: run 'kqf --help' to see commands that may not need one")
		return nil
	}

	mode, err := ask("Would you like to:\n"+
		" d) Start with the default configuration for KQF\n"+
		" e) Start with an empty configuration file\n"+
		" i) Answer questions to generate a configuration\n"+
		"Select", 'd', 'e', 'i')
	if err != nil {
		return err
	}
	content := ""
	switch mode {
	case 'd':
		content = config.DefaultContent
	case 'i':
		return cli.ErrNotImplemented("configuration interview")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Created %s\n", path)

	answer, err = ask("Would you like to open the config in an editor", 'y', 'n')
	if err != nil {
		return err
	}
	if answer == 'y' {
		return editor.Launch(ctx, runner.Exec(), path)
	}
	return nil
}

// ask prints the prompt to stderr and reads single keys from the
// terminal until one of answers arrives. Nothing echoes while it
// waits; the accepted key is echoed back.
func ask(prompt string, answers ...byte) (byte, error) {
	fmt.Fprintf(os.Stderr, "\n%s (%s): ", prompt, joinKeys(answers))
	for {
		key, err := readKey()
		if err != nil {
			return 0, err
		}
		if key >= 'A' && key <= 'Z' {
			key += 'a' - 'A'
		}
		if key == 0x03 { // Ctrl-C arrives as a byte in raw mode
			fmt.Fprintln(os.Stderr)
			return 0, fmt.Errorf("interrupted")
		}
		for _, want := range answers {
			if key == want {
				fmt.Fprintf(os.Stderr, "%c\n", key)
				return key, nil
			}
		}
	}
}

// readKey reads one byte with the terminal in raw mode, restoring the
// previous state before returning.
func readKey() (byte, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return 0, fmt.Errorf("reading from the terminal: %w", err)
	}
	buf := make([]byte, 1)
	_, err = os.Stdin.Read(buf)
	term.Restore(fd, state)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func joinKeys(keys []byte) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, "/")
}
