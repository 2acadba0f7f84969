// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flavor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Laikulo/klipper-quickflash/lib/clock"
)

// ErrWorkspaceBusy is returned by Activate while a different flavor
// holds the build workspace.
var ErrWorkspaceBusy = errors.New("build workspace is busy")

// BuildTool is the subset of the build system the workspace drives.
// *buildtool.Make satisfies it.
type BuildTool interface {
	Clean(ctx context.Context) error
	OldDefConfig(ctx context.Context) error
	DistClean(ctx context.Context) error
	All(ctx context.Context) error
	Menuconfig(ctx context.Context) error
}

const backupStamp = "20060102T1504"

// Workspace mediates exclusive occupancy of the Klipper source tree.
// Occupancy is per process; two kqf processes can still race, which
// matches how the tree is normally used (one operator at a time).
type Workspace struct {
	repo   string
	store  *Store
	build  BuildTool
	logger *slog.Logger
	clock  clock.Clock

	active string
	depth  int
}

// NewWorkspace returns a Workspace over the Klipper checkout at repo.
func NewWorkspace(repo string, store *Store, build BuildTool, logger *slog.Logger, clk clock.Clock) *Workspace {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Workspace{
		repo:   repo,
		store:  store,
		build:  build,
		logger: logger,
		clock:  clk,
	}
}

// Repo returns the Klipper source tree the workspace manages.
func (w *Workspace) Repo() string {
	return w.repo
}

// Active returns the flavor currently holding the workspace, or ""
// when it is free.
func (w *Workspace) Active() string {
	return w.active
}

func (w *Workspace) kconfigPath() string {
	return filepath.Join(w.repo, ".config")
}

// Activate loads the flavor's saved kconfig into the source tree and
// marks the flavor as the workspace occupant. Activating the flavor
// that already holds the workspace nests; each Activate pairs with one
// Deactivate and only the outermost pair does the real work. A
// different flavor gets ErrWorkspaceBusy.
//
// An unmanaged .config already in the tree is renamed aside with its
// modification time in the name, never overwritten.
func (w *Workspace) Activate(ctx context.Context, flavor string) error {
	if w.active == flavor {
		w.depth++
		return nil
	}
	if w.active != "" {
		return fmt.Errorf("%w: flavor %s holds it", ErrWorkspaceBusy, w.active)
	}
	w.logger.Debug("activating flavor", "flavor", flavor)
	if err := w.backupUnmanagedKconfig(); err != nil {
		return err
	}
	if err := w.build.Clean(ctx); err != nil {
		w.logger.Warn("make clean failed, continuing", "error", err)
	}
	if w.store.Exists(flavor) {
		w.logger.Debug("loading saved kconfig", "flavor", flavor)
		if err := copyFile(w.store.Path(flavor), w.kconfigPath()); err != nil {
			return fmt.Errorf("loading kconfig for flavor %s: %w", flavor, err)
		}
		if err := w.build.OldDefConfig(ctx); err != nil {
			w.logger.Warn("make olddefconfig failed, continuing", "error", err)
		}
	}
	w.active = flavor
	w.depth = 1
	return nil
}

// Deactivate saves the tree's kconfig back to the flavor store and
// releases the workspace. Defer it immediately after a successful
// Activate; the store copy is authoritative, so this must run on every
// exit path. Cleaning failures are logged and tolerated.
func (w *Workspace) Deactivate(ctx context.Context) {
	if w.active == "" {
		return
	}
	if w.depth > 1 {
		w.depth--
		return
	}
	flavor := w.active
	if err := os.MkdirAll(w.store.Dir(), 0o755); err != nil {
		w.logger.Error("could not create the flavor store directory",
			"dir", w.store.Dir(), "error", err)
	}
	if _, err := os.Stat(w.kconfigPath()); err == nil {
		if err := moveFile(w.kconfigPath(), w.store.Path(flavor)); err != nil {
			w.logger.Error("could not save the kconfig back to the flavor store",
				"flavor", flavor, "error", err)
		} else {
			w.logger.Debug("saved kconfig", "flavor", flavor)
			w.store.Invalidate(flavor)
		}
	}
	if err := w.build.DistClean(ctx); err != nil {
		w.logger.Warn("make distclean failed, continuing", "error", err)
	}
	w.active = ""
	w.depth = 0
}

// backupUnmanagedKconfig renames aside a .config the store does not
// manage, typically from a manual build in the tree.
func (w *Workspace) backupUnmanagedKconfig() error {
	path := w.kconfigPath()
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	backup := fmt.Sprintf("%s-mod_%s-saved_-%s-%d.bak",
		path,
		info.ModTime().Format(backupStamp),
		w.clock.Now().Format(backupStamp),
		os.Getpid())
	w.logger.Info("found an unmanaged kconfig in the workspace, renaming it aside",
		"from", path, "to", backup)
	return os.Rename(path, backup)
}

// Build compiles the flavor's firmware and archives the build outputs
// as the given version ("" means latest). The kconfig persists back to
// the store even when the build fails.
func (w *Workspace) Build(ctx context.Context, flavor, version string) error {
	if version == "" {
		version = "latest"
	}
	if err := w.Activate(ctx, flavor); err != nil {
		return err
	}
	defer w.Deactivate(ctx)

	// Klipper's build does not handle `make clean all` in a single
	// invocation, so clean runs separately and strictly here.
	if err := w.build.Clean(ctx); err != nil {
		return fmt.Errorf("cleaning before build: %w", err)
	}
	if err := w.build.All(ctx); err != nil {
		return fmt.Errorf("building flavor %s: %w", flavor, err)
	}
	return w.ArchiveArtifacts(flavor, version)
}

// Menuconfig opens Klipper's interactive configuration editor for the
// flavor and optionally builds afterwards, all under one occupancy.
func (w *Workspace) Menuconfig(ctx context.Context, flavor string, buildAfter bool) error {
	if err := w.Activate(ctx, flavor); err != nil {
		return err
	}
	defer w.Deactivate(ctx)
	if err := w.build.Menuconfig(ctx); err != nil {
		return fmt.Errorf("menuconfig for flavor %s: %w", flavor, err)
	}
	if buildAfter {
		return w.Build(ctx, flavor, "latest")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, copying when rename fails: the flavor
// store may live on a different filesystem than the source tree.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
