// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFlashtoolEnsureDownloadsOnce(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits++
		w.Write([]byte("#!/usr/bin/env python3\nprint('flashtool')\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "lib", "flashtool.py")
	tool := &Flashtool{Path: path, URL: srv.URL, Client: srv.Client()}

	got, err := tool.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() = %v", err)
	}
	if got != path {
		t.Errorf("Ensure() = %s, want %s", got, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("flashtool was not written: %v", err)
	}
	if info.Mode().Perm()&0o111 != 0o111 {
		t.Errorf("flashtool mode = %v, want executable", info.Mode())
	}

	if _, err := tool.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure() = %v", err)
	}
	if hits != 1 {
		t.Errorf("downloaded %d times, want 1", hits)
	}
}

func TestFlashtoolEnsureReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	tool := &Flashtool{
		Path:   filepath.Join(t.TempDir(), "flashtool.py"),
		URL:    srv.URL,
		Client: srv.Client(),
	}
	_, err := tool.Ensure(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Ensure() = %v, want a 404 error", err)
	}
	if _, statErr := os.Stat(tool.Path); !os.IsNotExist(statErr) {
		t.Error("a failed download left a flashtool behind")
	}
}

func TestFlashtoolEnsureMarksExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashtool.py")
	if err := os.WriteFile(path, []byte("#!/usr/bin/env python3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := &Flashtool{Path: path}

	if _, err := tool.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("flashtool mode = %v, want 0755", info.Mode().Perm())
	}
}
