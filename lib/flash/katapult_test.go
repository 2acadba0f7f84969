// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flash

import (
	"context"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
)

func katapultRecord() *mcu.Record {
	return &mcu.Record{
		Name:        "xye",
		Flavor:      "canboot",
		FlashMethod: mcu.MethodKatapult,
		CommType:    mcu.CommCAN,
		CommDevice:  "can0",
		CommID:      "a1b2c3d4e5f6",
		MCUChip:     "rp2040",
		CommSpeed:   "250000",
	}
}

func TestFlashKatapultCAN(t *testing.T) {
	r := newRig(t)
	dir := r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	rec := katapultRecord()

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	calls := r.run.Calls()
	if len(calls) != 1 {
		t.Fatalf("ran %d commands, want 1", len(calls))
	}
	if calls[0].Name != r.tool {
		t.Errorf("command = %s, want the flashtool", calls[0].Name)
	}
	want := []string{"-i", "can0", "-u", "a1b2c3d4e5f6", "-f", filepath.Join(dir, "klipper.bin")}
	if !reflect.DeepEqual(calls[0].Args, want) {
		t.Errorf("args = %v, want %v", calls[0].Args, want)
	}
}

func TestFlashKatapultUSBSerialSynthesizesDevice(t *testing.T) {
	r := newRig(t)
	dir := r.writeSnapshot(t, "canboot", "v2", "klipper.bin", "klipper.dict")
	rec := katapultRecord()
	rec.FlashOpts.Set("mode", "usb_serial")

	if err := r.orch.Flash(context.Background(), rec, "v2", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	want := []string{
		"-d", "/dev/serial/by-id/usb-katapult_rp2040_a1b2c3d4e5f6-if00",
		"-b", "250000",
		"-f", filepath.Join(dir, "klipper.bin"),
	}
	if calls := r.run.Calls(); !reflect.DeepEqual(calls[0].Args, want) {
		t.Errorf("args = %v, want %v", calls[0].Args, want)
	}
}

func TestFlashKatapultUART(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	rec := katapultRecord()
	rec.FlashOpts.Set("mode", "uart")
	rec.FlashOpts.Set("serial", "/dev/ttyAMA0")
	rec.FlashOpts.Set("serial_baud", "57600")

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	args := r.run.Calls()[0].Args
	wantPrefix := []string{"-d", "/dev/ttyAMA0", "-b", "57600"}
	if len(args) < 4 || !reflect.DeepEqual(args[:4], wantPrefix) {
		t.Errorf("args = %v, want prefix %v", args, wantPrefix)
	}
}

func TestFlashKatapultVerbose(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	rec := katapultRecord()
	rec.FlashOpts.Set("verbose", "1")

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	args := r.run.Calls()[0].Args
	i := slices.Index(args, "-v")
	if i < 0 || i != len(args)-3 {
		t.Errorf("args = %v, want -v just before -f", args)
	}
}

func TestFlashKatapultInvalidMode(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	rec := katapultRecord()
	rec.FlashOpts.Set("mode", "spi")

	err := r.orch.Flash(context.Background(), rec, "", false)
	if err == nil || !strings.Contains(err.Error(), "katapult mode") {
		t.Fatalf("Flash() = %v, want an invalid-mode error", err)
	}
}

func TestFlashKatapultInterpreterOption(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	rec := katapultRecord()
	rec.FlashOpts.Set("interpreter", "/usr/bin/python3.12")

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	call := r.run.Calls()[0]
	if call.Name != "/usr/bin/python3.12" {
		t.Errorf("command = %s, want the configured interpreter", call.Name)
	}
	if len(call.Args) == 0 || call.Args[0] != r.tool {
		t.Errorf("args = %v, want the flashtool path first", call.Args)
	}
}

func TestFlashKatapultVenvOption(t *testing.T) {
	r := newRig(t)
	r.writeSnapshot(t, "canboot", "latest", "klipper.bin", "klipper.dict")
	venv := t.TempDir()
	rec := katapultRecord()
	rec.FlashOpts.Set("venv", venv)

	if err := r.orch.Flash(context.Background(), rec, "", false); err != nil {
		t.Fatalf("Flash() = %v", err)
	}
	call := r.run.Calls()[0]
	if want := filepath.Join(venv, "bin", "python3"); call.Name != want {
		t.Errorf("command = %s, want %s", call.Name, want)
	}
	if want := "VIRTUAL_ENV=" + venv; !slices.Contains(call.Env, want) {
		t.Errorf("env = %v, want %s", call.Env, want)
	}
}
