// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

func makeRecord() *mcu.Record {
	return &mcu.Record{
		Name:        "mcu",
		Flavor:      "avr",
		FlashMethod: mcu.MethodMake,
		MCUType:     "avr",
		MCUChip:     "atmega2560",
	}
}

func TestFlashMakeCommandSequence(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "avr", "latest", "klipper.bin", "klipper.dict", "klipper.elf")
	// A saved kconfig makes activation load it and run olddefconfig.
	if err := os.MkdirAll(r.store.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r.store.Path("avr"), []byte("CONFIG_MACH_AVR=y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := makeRecord()
	rec.FlashOpts.Set("var_flash_device", "FLASH_DEVICE=/dev/ttyUSB0")

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	want := []string{
		"make clean",
		"make olddefconfig",
		"make --old-file=out/klipper.elf FLASH_DEVICE=/dev/ttyUSB0 flash",
		"make distclean",
	}
	if got := r.run.CommandLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("command lines = %v, want %v", got, want)
	}
	// The archived artifacts must be back in the tree for make to see.
	if _, err := os.Stat(filepath.Join(r.repo, "out", "klipper.elf")); err != nil {
		t.Errorf("klipper.elf was not restored: %v", err)
	}
}

func TestFlashMakeDebugAndTarget(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "avr", "latest", "klipper.bin", "klipper.dict", "klipper.elf")
	rec := makeRecord()
	rec.FlashOpts.Set("debug", "1")
	rec.FlashOpts.Set("target", "flashsd")

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	want := "make --old-file=out/klipper.elf -d flashsd"
	for _, line := range r.run.CommandLines() {
		if line == want {
			return
		}
	}
	t.Errorf("command lines = %v, want one to be %q", r.run.CommandLines(), want)
}

func TestFlashMakeMissingELF(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "avr", "latest", "klipper.bin", "klipper.dict")
	rec := makeRecord()

	err := r.orch.Flash(context.Background(), rec, "", false)
	if err == nil || !strings.Contains(err.Error(), "klipper.elf") {
		t.Fatalf("Flash() = %v, want a missing klipper.elf error", err)
	}
	// The workspace must still be released on the failure path.
	lines := r.run.CommandLines()
	if len(lines) == 0 || lines[len(lines)-1] != "make distclean" {
		t.Errorf("command lines = %v, want a trailing make distclean", lines)
	}
}

// nonzeroExit returns a genuine *exec.ExitError, as the real runner
// surfaces when a flash tool exits nonzero.
func nonzeroExit(t *testing.T) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit 3").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("sh -c 'exit 3' = %v, want an exit error", err)
	}
	return err
}

func TestFlashMakeStm32FailureDemoted(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "stm", "latest", "klipper.bin", "klipper.dict", "klipper.elf")
	failure := nonzeroExit(t)
	r.run.HandleAttached = func(cmd runner.Command) error {
		return failure
	}
	rec := makeRecord()
	rec.Flavor = "stm"
	rec.MCUType = "stm32"
	rec.MCUChip = "stm32f446xx"

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v, want stm32 flash failures demoted to a warning", err)
	}
}

func TestFlashMakeStm32KillStillFails(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "stm", "latest", "klipper.bin", "klipper.dict", "klipper.elf")
	r.run.HandleAttached = func(cmd runner.Command) error {
		// Not a nonzero exit: the tool was killed mid-flash.
		return errors.New("make --old-file=out/klipper.elf flash: signal: killed")
	}
	rec := makeRecord()
	rec.Flavor = "stm"
	rec.MCUType = "stm32"
	rec.MCUChip = "stm32f446xx"

	if err := r.orch.Flash(context.Background(), rec, "", false); err == nil {
		t.Fatal("Flash() = nil, want a killed flash to fail even on stm32")
	}
}

func TestFlashMakeFailurePropagatesOffStm32(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "avr", "latest", "klipper.bin", "klipper.dict", "klipper.elf")
	failure := nonzeroExit(t)
	r.run.HandleAttached = func(cmd runner.Command) error {
		return failure
	}
	rec := makeRecord()

	if err := r.orch.Flash(context.Background(), rec, "", false); err == nil {
		t.Fatal("Flash() = nil, want the make failure")
	}
}
