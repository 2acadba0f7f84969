// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package selfupdate replaces the running kqf binary with a release
// asset from GitHub. The previous binary is kept next to the new one
// as <path>.bak.
package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/gzip"
)

// defaultAPIBase is the releases endpoint for this project.
const defaultAPIBase = "https://api.github.com/repos/laikulo/klipper-quickflash/releases"

var (
	// ErrReleaseNotFound means the requested tag does not exist.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrNoAsset means the release has no binary for this platform.
	ErrNoAsset = errors.New("release has no binary")
)

// Release is the slice of the GitHub release object the updater reads.
type Release struct {
	TagName    string  `json:"tag_name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Updater performs self-updates. The zero value updates the running
// executable from the project's GitHub releases.
type Updater struct {
	// APIBase overrides the releases API endpoint.
	APIBase string

	// Client overrides the HTTP client.
	Client *http.Client

	// Executable overrides the path of the binary to replace. Empty
	// means the running executable, symlinks resolved.
	Executable string

	// Arch overrides the architecture used for asset selection. Empty
	// means runtime.GOARCH.
	Arch string

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Upgrade replaces the binary with the release named by tag, or the
// latest stable release when tag is empty. Prerelease tags are
// refused unless allowPrerelease is set.
func (u *Updater) Upgrade(ctx context.Context, tag string, allowPrerelease bool) error {
	if tag == "" && allowPrerelease {
		return errors.New("upgrading to the latest prerelease is not supported; name one with --tag")
	}
	rel, err := u.fetchRelease(ctx, tag)
	if err != nil {
		return err
	}
	if rel.Prerelease && !allowPrerelease {
		return fmt.Errorf("%s is a prerelease; pass --pre to install it anyway", rel.TagName)
	}
	asset, gzipped, err := pickAsset(rel.Assets, u.arch())
	if err != nil {
		return err
	}
	exe, err := u.executablePath()
	if err != nil {
		return err
	}
	u.logger().Info("upgrading",
		"to", rel.TagName, "asset", asset.Name, "executable", exe)
	tmp, err := u.download(ctx, asset, gzipped, exe)
	if err != nil {
		return err
	}
	info, err := os.Stat(exe)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		os.Remove(tmp)
		return err
	}
	backup := exe + ".bak"
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		os.Remove(tmp)
		return fmt.Errorf("removing the old backup %s: %w", backup, err)
	}
	if err := os.Rename(exe, backup); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, exe); err != nil {
		// Put the previous binary back so there is still a working kqf.
		if rollback := os.Rename(backup, exe); rollback != nil {
			return fmt.Errorf("installing the new binary: %w (previous binary left at %s)", err, backup)
		}
		return fmt.Errorf("installing the new binary: %w", err)
	}
	u.logger().Info("upgrade complete", "version", rel.TagName, "backup", backup)
	return nil
}

func (u *Updater) fetchRelease(ctx context.Context, tag string) (*Release, error) {
	base := u.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	url := base + "/latest"
	if tag != "" {
		url = base + "/tags/" + tag
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := u.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && tag != "" {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querying releases: %s", resp.Status)
	}
	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release metadata: %w", err)
	}
	return &rel, nil
}

// pickAsset selects the linux binary for arch, preferring the bare
// binary over the gzipped variant. The second return reports whether
// the asset needs gunzipping.
func pickAsset(assets []Asset, arch string) (Asset, bool, error) {
	want := "kqf_linux_" + arch
	for _, a := range assets {
		if a.Name == want {
			return a, false, nil
		}
	}
	for _, a := range assets {
		if a.Name == want+".gz" {
			return a, true, nil
		}
	}
	return Asset{}, false, fmt.Errorf("%w for linux/%s", ErrNoAsset, arch)
}

// download fetches the asset into a temporary file beside exe, so the
// final rename stays on one filesystem and a read-only install
// directory fails here with a clear error.
func (u *Updater) download(ctx context.Context, asset Asset, gzipped bool, exe string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := u.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: %s", asset.Name, resp.Status)
	}
	var body io.Reader = resp.Body
	if gzipped {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", asset.Name, err)
		}
		defer gz.Close()
		body = gz
	}
	tmp, err := os.CreateTemp(filepath.Dir(exe), ".kqf-upgrade-*")
	if err != nil {
		return "", fmt.Errorf("cannot write next to %s: %w", exe, err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (u *Updater) executablePath() (string, error) {
	if u.Executable != "" {
		return u.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating the running executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", exe, err)
	}
	return resolved, nil
}

func (u *Updater) arch() string {
	if u.Arch != "" {
		return u.Arch
	}
	return runtime.GOARCH
}

func (u *Updater) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return http.DefaultClient
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.New(slog.DiscardHandler)
}
