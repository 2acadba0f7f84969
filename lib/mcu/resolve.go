// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package mcu

import (
	"context"
	"log/slog"

	"github.com/Laikulo/klipper-quickflash/lib/klipper"
)

// KconfigSource reads variables from a flavor's saved build profile.
// Absent flavors and absent variables both yield "".
type KconfigSource interface {
	ConfigVariable(flavor, name string) (string, error)
}

// Prober answers questions about the running system's hardware.
type Prober interface {
	CANBitrate(ctx context.Context, ifname string) (string, error)
	USBSerialForInterface(ifname string) (string, error)
}

// Cache filters freshly observed values through persistent storage so
// the last known answer survives the hardware going away.
type Cache interface {
	Filter(ctx context.Context, cacheContext, key, fresh, def string) string
}

// LiveLookup returns the communication settings the Klipper printer
// configuration holds for the named MCU.
type LiveLookup func(name string) (klipper.LiveConfiguration, bool)

// Chip families whose kconfig carries a CONFIG_MCU chip selection.
var chipFromKconfig = map[string]bool{
	"stm32":    true,
	"avr":      true,
	"atsam":    true,
	"atsamd":   true,
	"lpc1768":  true,
	"hc32f460": true,
	"rp2040":   true,
}

// Families where the board directory already names the chip.
var chipIsType = map[string]bool{
	"linux":     true,
	"pru":       true,
	"ar110":     true,
	"simulator": true,
}

// Resolver merges the configuration layers into complete Records.
// Precedence runs override, then live configuration, then derivation
// from the flavor's kconfig and the running system. Every collaborator
// except Kconfig may be nil; a nil source simply contributes nothing.
type Resolver struct {
	Live    LiveLookup
	Kconfig KconfigSource
	Prober  Prober
	Cache   Cache
	Logger  *slog.Logger
}

// Resolve produces the record for one MCU. It never fails: fields no
// source can supply stay empty and are logged, and the operations that
// need them report the gap when they run.
func (r *Resolver) Resolve(ctx context.Context, name string, override ConfigOverride) *Record {
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("mcu", name)

	rec := &Record{
		Name:        name,
		Flavor:      override.Flavor,
		MCUType:     override.MCUType,
		MCUChip:     override.MCUChip,
		CommType:    override.CommType,
		CommID:      override.CommID,
		CommDevice:  override.CommDevice,
		CommSpeed:   override.CommSpeed,
		Bootloader:  override.Bootloader,
		FlashMethod: override.FlashMethod,
		FlashOpts:   override.FlashOpts.Clone(),
	}
	if rec.FlashOpts.Len() > 0 && override.FlashMethod == "" {
		log.Warn("flash options specified without a flash method, this is unsafe; please set flash_method")
	}

	if r.Live != nil {
		if live, ok := r.Live(name); ok {
			if rec.CommType == "" {
				rec.CommType = live.CommType
			}
			if rec.CommID == "" {
				rec.CommID = live.CommID
			}
			if rec.CommDevice == "" {
				rec.CommDevice = live.CommDevice
			}
			if rec.CommSpeed == "" {
				rec.CommSpeed = live.CommSpeed
			}
		}
	}

	r.extendFromKconfig(rec, log)
	r.resolveBitrate(ctx, rec, log)
	r.resolveFlashMethod(rec, log)
	r.resolveKatapultMode(rec, log)
	r.resolveBridgeUSBID(rec, log)
	r.resolveEntryMode(rec, log)
	r.resolveCommID(ctx, rec, log)
	return rec
}

// extendFromKconfig fills MCUType and MCUChip from the flavor's saved
// build profile.
func (r *Resolver) extendFromKconfig(rec *Record, log *slog.Logger) {
	flavorType := r.kconfigValue(rec.Flavor, "CONFIG_BOARD_DIRECTORY", log)
	if rec.MCUType == "" {
		if flavorType == "" {
			log.Warn("could not determine machine type", "flavor", rec.Flavor)
		} else {
			rec.MCUType = flavorType
		}
	}
	if rec.MCUChip != "" {
		return
	}
	switch {
	case chipIsType[rec.MCUType]:
		rec.MCUChip = rec.MCUType
	case chipFromKconfig[rec.MCUType]:
		if chip := r.kconfigValue(rec.Flavor, "CONFIG_MCU", log); chip != "" {
			rec.MCUChip = chip
		} else {
			log.Warn("could not determine mcu chip, missing from flavor config", "flavor", rec.Flavor)
		}
	default:
		log.Warn("unable to determine chip for mcu, continuing without it", "type", rec.MCUType)
	}
}

// resolveBitrate fills CommSpeed for CAN-attached MCUs by probing the
// interface, falling back to the last cached observation. Fresh probes
// write through to the cache.
func (r *Resolver) resolveBitrate(ctx context.Context, rec *Record, log *slog.Logger) {
	if rec.CommType != CommCAN || rec.CommDevice == "" || rec.CommSpeed != "" {
		return
	}
	fresh := ""
	if r.Prober != nil {
		var err error
		fresh, err = r.Prober.CANBitrate(ctx, rec.CommDevice)
		if err != nil {
			log.Debug("bitrate probe failed", "interface", rec.CommDevice, "error", err)
			fresh = ""
		}
	}
	rec.CommSpeed = r.filter(ctx, "canif:"+rec.CommDevice, "baud", fresh)
	if rec.CommSpeed == "" {
		log.Warn("unable to determine CAN bitrate for interface, please set communication_speed in the mcu section",
			"interface", rec.CommDevice)
	}
}

func (r *Resolver) resolveFlashMethod(rec *Record, log *slog.Logger) {
	if rec.FlashMethod != "" {
		return
	}
	switch {
	case rec.Bootloader == "katapult":
		rec.FlashMethod = MethodKatapult
	case rec.MCUType == "linux":
		rec.FlashMethod = MethodMake
	default:
		log.Warn("no specific flash procedure could be determined, defaulting to make flash")
		rec.FlashMethod = MethodMake
	}
}

// resolveKatapultMode derives FlashOpts["mode"] from how the firmware
// was built. A USB-CAN bridge reboots into katapult's USB serial port,
// so it flashes over usb_serial even though Klipper talks CAN to it.
func (r *Resolver) resolveKatapultMode(rec *Record, log *slog.Logger) {
	if rec.FlashMethod != MethodKatapult || rec.FlashOpts.Has("mode") {
		return
	}
	switch {
	case r.flavorFlag(rec.Flavor, "CONFIG_USBCANBUS", log) || r.flavorFlag(rec.Flavor, "CONFIG_USBSERIAL", log):
		rec.FlashOpts.Set("mode", "usb_serial")
	case r.flavorFlag(rec.Flavor, "CONFIG_SERIAL", log):
		rec.FlashOpts.Set("mode", "uart")
	case rec.CommType == CommCAN:
		rec.FlashOpts.Set("mode", "can")
	default:
		log.Warn("could not derive a katapult mode for mcu, set flash_mode explicitly")
	}
}

// resolveBridgeUSBID finds the USB serial number a bridge will present
// after rebooting into katapult, by walking sysfs from the CAN network
// interface up to the owning USB device.
func (r *Resolver) resolveBridgeUSBID(rec *Record, log *slog.Logger) {
	if rec.FlashMethod != MethodKatapult || rec.FlashOpts.Has("usb_id") {
		return
	}
	if rec.CommType != CommCAN || rec.CommDevice == "" || r.Prober == nil {
		return
	}
	if !r.flavorFlag(rec.Flavor, "CONFIG_USBCANBUS", log) {
		return
	}
	serial, err := r.Prober.USBSerialForInterface(rec.CommDevice)
	if err != nil {
		log.Warn("could not determine the USB serial number behind the CAN interface",
			"interface", rec.CommDevice, "error", err)
		return
	}
	rec.FlashOpts.Set("usb_id", serial)
}

func (r *Resolver) resolveEntryMode(rec *Record, log *slog.Logger) {
	if rec.FlashOpts.Has("entry_mode") {
		return
	}
	if rec.FlashMethod != MethodMake && rec.FlashMethod != MethodKatapult {
		return
	}
	switch {
	case rec.CommType == CommCAN:
		rec.FlashOpts.Set("entry_mode", "can")
	case r.flavorFlag(rec.Flavor, "CONFIG_USBCANBUS", log) || r.flavorFlag(rec.Flavor, "CONFIG_USBSERIAL", log):
		rec.FlashOpts.Set("entry_mode", "usb_serial")
	case r.flavorFlag(rec.Flavor, "CONFIG_SERIAL", log):
		rec.FlashOpts.Set("entry_mode", "serial")
	}
	// Anything else needs no bootloader entry.
}

// resolveCommID falls back to the last cached communication ID so that
// an MCU already sitting in its bootloader can still be addressed.
// Fresh values write through to the cache.
func (r *Resolver) resolveCommID(ctx context.Context, rec *Record, log *slog.Logger) {
	rec.CommID = r.filter(ctx, "communications_id", "mcu:"+rec.Name, rec.CommID)
	if rec.CommID == "" && (rec.CommType == CommCAN || rec.CommType == CommSerial) {
		log.Warn("no communication id known for mcu, set communication_id in its section")
	}
}

func (r *Resolver) kconfigValue(flavor, name string, log *slog.Logger) string {
	if r.Kconfig == nil || flavor == "" {
		return ""
	}
	v, err := r.Kconfig.ConfigVariable(flavor, name)
	if err != nil {
		log.Debug("could not read flavor config", "flavor", flavor, "variable", name, "error", err)
		return ""
	}
	return v
}

// flavorFlag reports whether a kconfig boolean is switched on.
func (r *Resolver) flavorFlag(flavor, name string, log *slog.Logger) bool {
	return r.kconfigValue(flavor, name, log) == "y"
}

func (r *Resolver) filter(ctx context.Context, cacheContext, key, fresh string) string {
	if r.Cache == nil {
		return fresh
	}
	return r.Cache.Filter(ctx, cacheContext, key, fresh, "")
}
