// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flavor

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "flavors"), filepath.Join(t.TempDir(), "firmware"))
}

func writeFlavor(t *testing.T, s *Store, flavor, content string) {
	t.Helper()
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(flavor), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListExisting(t *testing.T) {
	s := newTestStore(t)
	if got := s.ListExisting(); len(got) != 0 {
		t.Errorf("expected empty list for missing store, got %v", got)
	}

	writeFlavor(t, s, "mainboard", "CONFIG_MCU=\"stm32f446xx\"\n")
	writeFlavor(t, s, "toolhead", "CONFIG_MCU=\"rp2040\"\n")
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(s.Dir(), "backup.config"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := s.ListExisting()
	want := []string{"mainboard", "toolhead"}
	if len(got) != len(want) {
		t.Fatalf("ListExisting() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListExisting()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigVariable(t *testing.T) {
	s := newTestStore(t)
	writeFlavor(t, s, "skr", `#
# Automatically generated file; DO NOT EDIT.
#
CONFIG_BOARD_DIRECTORY="stm32"
CONFIG_MCU="stm32f446xx"
CONFIG_CLOCK_FREQ=180000000
CONFIG_USBSERIAL=y

# CONFIG_CANSERIAL is not set
`)

	tests := []struct {
		name string
		want string
	}{
		{name: "CONFIG_BOARD_DIRECTORY", want: "stm32"},
		{name: "CONFIG_MCU", want: "stm32f446xx"},
		{name: "CONFIG_CLOCK_FREQ", want: "180000000"},
		{name: "CONFIG_USBSERIAL", want: "y"},
		{name: "CONFIG_CANSERIAL", want: ""},
		{name: "CONFIG_MISSING", want: ""},
	}
	for _, tt := range tests {
		got, err := s.ConfigVariable("skr", tt.name)
		if err != nil {
			t.Fatalf("ConfigVariable(%s) failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ConfigVariable(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestConfigVariableMissingFlavor(t *testing.T) {
	s := newTestStore(t)
	got, err := s.ConfigVariable("nope", "CONFIG_MCU")
	if err != nil {
		t.Fatalf("expected no error for missing flavor, got %v", err)
	}
	if got != "" {
		t.Errorf("ConfigVariable() = %q, want empty", got)
	}
}

func TestConfigVariableCachesUntilInvalidate(t *testing.T) {
	s := newTestStore(t)
	writeFlavor(t, s, "skr", "CONFIG_MCU=\"stm32f446xx\"\n")

	if got, _ := s.ConfigVariable("skr", "CONFIG_MCU"); got != "stm32f446xx" {
		t.Fatalf("ConfigVariable() = %q, want stm32f446xx", got)
	}

	writeFlavor(t, s, "skr", "CONFIG_MCU=\"stm32h743xx\"\n")
	if got, _ := s.ConfigVariable("skr", "CONFIG_MCU"); got != "stm32f446xx" {
		t.Errorf("ConfigVariable() = %q, want cached stm32f446xx", got)
	}

	s.Invalidate("skr")
	if got, _ := s.ConfigVariable("skr", "CONFIG_MCU"); got != "stm32h743xx" {
		t.Errorf("ConfigVariable() after Invalidate = %q, want stm32h743xx", got)
	}
}

func TestListFirmwareVersions(t *testing.T) {
	s := newTestStore(t)
	write := func(version string, files ...string) {
		t.Helper()
		dir := s.VersionPath("skr", version)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	write("latest", "klipper.dict", "klipper.bin", "klipper.elf")
	write("v0.12.0", "klipper.dict", "klipper.uf2")
	write("dict-only", "klipper.dict")
	write("image-only", "klipper.bin")

	got := s.ListFirmwareVersions("skr")
	want := []string{"latest", "v0.12.0"}
	if len(got) != len(want) {
		t.Fatalf("ListFirmwareVersions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListFirmwareVersions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := s.ListFirmwareVersions("unknown"); len(got) != 0 {
		t.Errorf("expected no versions for unknown flavor, got %v", got)
	}
}
