// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// releaseServer serves a releases API plus asset downloads. Assets
// maps asset name to raw body.
func releaseServer(t *testing.T, tag string, prerelease bool, assets map[string][]byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	release := func(w http.ResponseWriter) {
		var list []string
		for name := range assets {
			list = append(list, fmt.Sprintf(
				`{"name":%q,"browser_download_url":"%s/download/%s"}`,
				name, srv.URL, name))
		}
		fmt.Fprintf(w, `{"tag_name":%q,"prerelease":%v,"assets":[%s]}`,
			tag, prerelease, strings.Join(list, ","))
	}
	mux.HandleFunc("/releases/latest", func(w http.ResponseWriter, req *http.Request) {
		release(w)
	})
	mux.HandleFunc("/releases/tags/"+tag, func(w http.ResponseWriter, req *http.Request) {
		release(w)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, req *http.Request) {
		name := strings.TrimPrefix(req.URL.Path, "/download/")
		body, ok := assets[name]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Write(body)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fakeBinary writes a stand-in kqf executable and returns its path.
func fakeBinary(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kqf")
	if err := os.WriteFile(path, []byte(content), 0o751); err != nil {
		t.Fatal(err)
	}
	return path
}

func updater(srv *httptest.Server, exe string) *Updater {
	return &Updater{
		APIBase:    srv.URL + "/releases",
		Client:     srv.Client(),
		Executable: exe,
		Arch:       "amd64",
	}
}

func TestUpgradeReplacesBinary(t *testing.T) {
	srv := releaseServer(t, "v1.2.0", false, map[string][]byte{
		"kqf_linux_amd64": []byte("new binary"),
	})
	exe := fakeBinary(t, "old binary")

	if err := updater(srv, exe).Upgrade(context.Background(), "", false); err != nil {
		t.Fatalf("Upgrade() = %v", err)
	}
	got, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new binary" {
		t.Errorf("binary content = %q, want the release asset", got)
	}
	info, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o751 {
		t.Errorf("binary mode = %v, want the previous 0751 preserved", info.Mode().Perm())
	}
	backup, err := os.ReadFile(exe + ".bak")
	if err != nil {
		t.Fatalf("no backup: %v", err)
	}
	if string(backup) != "old binary" {
		t.Errorf("backup content = %q, want the previous binary", backup)
	}
}

func TestUpgradeGzippedAsset(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("compressed binary"))
	gz.Close()
	srv := releaseServer(t, "v1.3.0", false, map[string][]byte{
		"kqf_linux_amd64.gz": buf.Bytes(),
	})
	exe := fakeBinary(t, "old binary")

	if err := updater(srv, exe).Upgrade(context.Background(), "", false); err != nil {
		t.Fatalf("Upgrade() = %v", err)
	}
	got, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "compressed binary" {
		t.Errorf("binary content = %q, want the decompressed asset", got)
	}
}

func TestUpgradeRefusesPrerelease(t *testing.T) {
	srv := releaseServer(t, "v2.0.0-rc1", true, map[string][]byte{
		"kqf_linux_amd64": []byte("rc binary"),
	})
	exe := fakeBinary(t, "old binary")

	err := updater(srv, exe).Upgrade(context.Background(), "v2.0.0-rc1", false)
	if err == nil || !strings.Contains(err.Error(), "prerelease") {
		t.Fatalf("Upgrade() = %v, want a prerelease refusal", err)
	}

	if err := updater(srv, exe).Upgrade(context.Background(), "v2.0.0-rc1", true); err != nil {
		t.Fatalf("Upgrade(--pre) = %v", err)
	}
}

func TestUpgradeNoAssetForArch(t *testing.T) {
	srv := releaseServer(t, "v1.2.0", false, map[string][]byte{
		"kqf_linux_riscv64": []byte("other binary"),
	})
	exe := fakeBinary(t, "old binary")

	err := updater(srv, exe).Upgrade(context.Background(), "", false)
	if !errors.Is(err, ErrNoAsset) {
		t.Fatalf("Upgrade() = %v, want ErrNoAsset", err)
	}
}

func TestUpgradeUnknownTag(t *testing.T) {
	srv := releaseServer(t, "v1.2.0", false, map[string][]byte{
		"kqf_linux_amd64": []byte("new binary"),
	})
	exe := fakeBinary(t, "old binary")

	err := updater(srv, exe).Upgrade(context.Background(), "v9.9.9", false)
	if !errors.Is(err, ErrReleaseNotFound) {
		t.Fatalf("Upgrade() = %v, want ErrReleaseNotFound", err)
	}
}

func TestUpgradeLatestPrereleaseUnsupported(t *testing.T) {
	u := &Updater{Executable: "/nonexistent/kqf"}
	err := u.Upgrade(context.Background(), "", true)
	if err == nil || !strings.Contains(err.Error(), "--tag") {
		t.Fatalf("Upgrade() = %v, want guidance toward --tag", err)
	}
}
