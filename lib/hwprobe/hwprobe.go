// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package hwprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Laikulo/klipper-quickflash/lib/runner"
)

// Prober probes the live system. The zero value is not usable; New
// wires the real system roots, tests substitute their own.
type Prober struct {
	runner  runner.Runner
	sysRoot string
}

// New returns a Prober for the live system.
func New(r runner.Runner) *Prober {
	return &Prober{runner: r, sysRoot: "/sys"}
}

// newFrom returns a Prober reading from an alternate sysfs root.
// Tests build synthetic trees under t.TempDir.
func newFrom(r runner.Runner, sysRoot string) *Prober {
	return &Prober{runner: r, sysRoot: sysRoot}
}

// canLink is the subset of `ip -details -json link show` output that
// carries the CAN bit timing.
type canLink struct {
	LinkInfo struct {
		InfoData struct {
			BitTiming struct {
				Bitrate int64 `json:"bitrate"`
			} `json:"bittiming"`
		} `json:"info_data"`
	} `json:"linkinfo"`
}

// CANBitrate returns the configured bitrate of a CAN network interface
// as a decimal string. An interface that is absent, down, or not CAN
// yields an error; the caller decides whether that is worth a warning.
func (p *Prober) CANBitrate(ctx context.Context, ifname string) (string, error) {
	out, err := p.runner.Run(ctx, runner.Command{
		Name: "ip",
		Args: []string{"-details", "-json", "link", "show", ifname},
	})
	if err != nil {
		return "", fmt.Errorf("querying link %s: %w", ifname, err)
	}

	var links []canLink
	if err := json.Unmarshal([]byte(out), &links); err != nil {
		return "", fmt.Errorf("parsing ip output for %s: %w", ifname, err)
	}
	if len(links) == 0 {
		return "", fmt.Errorf("no link information for %s", ifname)
	}
	bitrate := links[0].LinkInfo.InfoData.BitTiming.Bitrate
	if bitrate == 0 {
		return "", fmt.Errorf("link %s reports no CAN bit timing", ifname)
	}
	return strconv.FormatInt(bitrate, 10), nil
}

// USBSerialForInterface walks from a network interface's backing
// device node in sysfs up to the owning USB device and returns its
// serial attribute. This is how the flashtool's post-reboot device
// path is predicted for USB-CAN bridge boards: the bridge's CAN
// interface is backed by a USB device whose serial number reappears
// in /dev/serial/by-id once the bootloader re-enumerates.
func (p *Prober) USBSerialForInterface(ifname string) (string, error) {
	deviceLink := filepath.Join(p.sysRoot, "class", "net", ifname, "device")
	node, err := filepath.EvalSymlinks(deviceLink)
	if err != nil {
		return "", fmt.Errorf("resolving device node for %s: %w", ifname, err)
	}

	sysRoot, err := filepath.EvalSymlinks(p.sysRoot)
	if err != nil {
		sysRoot = p.sysRoot
	}

	// The interface device is usually a USB interface (X-Y:1.0); the
	// serial attribute lives on an ancestor, the USB device proper.
	for dir := node; strings.HasPrefix(dir, sysRoot) && dir != sysRoot; dir = filepath.Dir(dir) {
		data, err := os.ReadFile(filepath.Join(dir, "serial"))
		if err == nil {
			serial := strings.TrimSpace(string(data))
			if serial != "" {
				return serial, nil
			}
		}
	}
	return "", fmt.Errorf("no USB device with a serial attribute above interface %s", ifname)
}
