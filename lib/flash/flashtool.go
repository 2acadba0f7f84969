// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// FlashtoolURL is where katapult's flash utility is fetched from on
// first use.
const FlashtoolURL = "https://raw.githubusercontent.com/Arksine/katapult/master/scripts/flashtool.py"

// Flashtool manages the locally cached copy of katapult's flashtool
// script. The zero value is not usable; set Path.
type Flashtool struct {
	// Path is where the script is cached, normally under ~/.kqf/lib.
	Path string

	// URL overrides the download source. Empty means [FlashtoolURL].
	URL string

	// Client overrides the HTTP client used for the download.
	Client *http.Client

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Ensure downloads the flashtool if it is not cached yet and makes
// sure the cached copy is executable. It returns the script path.
func (t *Flashtool) Ensure(ctx context.Context) (string, error) {
	if _, err := os.Stat(t.Path); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := t.download(ctx); err != nil {
			return "", err
		}
	}
	info, err := os.Stat(t.Path)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm()&0o111 != 0o111 {
		t.logger().Debug("marking flashtool as executable", "path", t.Path)
		if err := os.Chmod(t.Path, info.Mode().Perm()|0o111); err != nil {
			return "", err
		}
	}
	return t.Path, nil
}

func (t *Flashtool) download(ctx context.Context) error {
	url := t.URL
	if url == "" {
		url = FlashtoolURL
	}
	t.logger().Debug("downloading katapult flashtool", "url", url, "path", t.Path)
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading flashtool: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading flashtool from %s: %s", url, resp.Status)
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.Path), "flashtool-*.py")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading flashtool: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), t.Path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (t *Flashtool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// invokeFlashtool runs the katapult flashtool with the interpreter
// the flash options call for. A venv option points the run at the
// venv's python3 and sets VIRTUAL_ENV for it; an interpreter option
// overrides the interpreter outright. With neither, the script runs
// on its own shebang.
func (o *Orchestrator) invokeFlashtool(ctx context.Context, opts mcu.Opts, args []string) error {
	script, err := o.flashtool.Ensure(ctx)
	if err != nil {
		return err
	}
	interpreter := ""
	var env []string
	if venv, ok := opts.Lookup("venv"); ok {
		venvDir, err := filepath.Abs(expandUser(venv))
		if err != nil {
			return fmt.Errorf("resolving venv %q: %w", venv, err)
		}
		interpreter = filepath.Join(venvDir, "bin", "python3")
		env = append(env, "VIRTUAL_ENV="+venvDir)
	}
	if explicit, ok := opts.Lookup("interpreter"); ok {
		interpreter = explicit
	}
	cmd := runner.Command{Env: env}
	if interpreter != "" {
		cmd.Name = interpreter
		cmd.Args = append([]string{script}, args...)
	} else {
		cmd.Name = script
		cmd.Args = args
	}
	o.logger.Debug("launching katapult flashtool", "command", cmd.String())
	return o.runner.RunAttached(ctx, cmd)
}

// expandUser resolves a leading ~ against the current user's home
// directory, leaving the path alone when the home directory is
// unknown.
func expandUser(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
