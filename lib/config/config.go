// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Laikulo/klipper-quickflash/lib/mcu"
)

// Config is the whole KQF configuration.
type Config struct {
	// KlipperRepo is the Klipper source checkout firmware is built in.
	KlipperRepo string `yaml:"klipper_repo"`

	// KlipperConfig is the printer configuration the Klipper daemon
	// runs with. Empty disables MCU discovery from the printer config;
	// MCUs then come only from the mcus section below.
	KlipperConfig string `yaml:"klipper_config"`

	// FlavorsDir holds the saved build profiles, one <name>.config
	// kconfig file per flavor.
	FlavorsDir string `yaml:"flavors_dir"`

	// FirmwareDir holds archived firmware, one directory per flavor
	// with one subdirectory per version.
	FirmwareDir string `yaml:"firmware_dir"`

	// CachePath is the hardware-observation cache database.
	CachePath string `yaml:"cache_path"`

	// FlashtoolPath is where the katapult flashtool script is kept.
	FlashtoolPath string `yaml:"flashtool_path"`

	// Autodetect guesses KlipperRepo and KlipperConfig when unset.
	Autodetect bool `yaml:"autodetect"`

	// MCUs holds per-MCU overrides, keyed by the MCU's name in the
	// printer configuration.
	MCUs map[string]*MCUConfig `yaml:"mcus"`
}

// MCUConfig is one MCU's explicit overrides from kqf.yml. Any key
// named flash_<opt> other than flash_method collects into FlashOpts
// (minus the prefix), preserving the order the user wrote them in.
type MCUConfig struct {
	Flavor      string
	MCUType     string
	MCUChip     string
	CommType    string
	CommID      string
	CommDevice  string
	CommSpeed   string
	Bootloader  string
	FlashMethod string
	FlashOpts   mcu.Opts
}

// UnmarshalYAML decodes an mcus section by hand so that flash_*
// options keep their document order and unknown keys are rejected
// instead of silently dropped.
func (m *MCUConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mcu section must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if valNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %s must be a scalar", valNode.Line, key)
		}
		value := valNode.Value
		switch key {
		case "flavor":
			m.Flavor = value
		case "mcu_type":
			m.MCUType = value
		case "mcu_chip":
			m.MCUChip = value
		case "communication_type":
			m.CommType = value
		case "communication_id":
			m.CommID = value
		case "communication_device":
			m.CommDevice = value
		case "communication_speed":
			m.CommSpeed = value
		case "bootloader":
			m.Bootloader = value
		case "flash_method":
			m.FlashMethod = value
		default:
			if opt, ok := strings.CutPrefix(key, "flash_"); ok {
				m.FlashOpts.Set(opt, value)
			} else {
				return fmt.Errorf("line %d: unknown mcu option %q", keyNode.Line, key)
			}
		}
	}
	return nil
}

// MarshalYAML renders the section the way UnmarshalYAML reads it:
// the named keys first, then the flash_* options in their stored
// order. Empty fields are omitted.
func (m *MCUConfig) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key, value string) {
		if value == "" {
			return
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value})
	}
	add("flavor", m.Flavor)
	add("mcu_type", m.MCUType)
	add("mcu_chip", m.MCUChip)
	add("communication_type", m.CommType)
	add("communication_id", m.CommID)
	add("communication_device", m.CommDevice)
	add("communication_speed", m.CommSpeed)
	add("bootloader", m.Bootloader)
	add("flash_method", m.FlashMethod)
	for _, key := range m.FlashOpts.Keys() {
		add("flash_"+key, m.FlashOpts.Get(key))
	}
	return node, nil
}

// Override converts the section into the resolver's top-precedence
// layer.
func (m *MCUConfig) Override() mcu.ConfigOverride {
	return mcu.ConfigOverride{
		Flavor:      m.Flavor,
		MCUType:     m.MCUType,
		MCUChip:     m.MCUChip,
		CommType:    m.CommType,
		CommID:      m.CommID,
		CommDevice:  m.CommDevice,
		CommSpeed:   m.CommSpeed,
		Bootloader:  m.Bootloader,
		FlashMethod: m.FlashMethod,
		FlashOpts:   m.FlashOpts.Clone(),
	}
}

// DefaultContent is the commented configuration the wizard writes for
// a fresh install. Every key is commented out, so loading it unchanged
// is the same as running with the built-in defaults.
const DefaultContent = `# This is the configuration for Klipper Quick Flash.
# Top-level keys configure KQF itself; entries under mcus configure
# one MCU each, keyed by the MCU's name in printer.cfg.

# klipper_repo: the Klipper checkout firmware is built in. When unset,
# a few common locations are tried (this works with KIAUH installs).
#klipper_repo: ~/klipper

# klipper_config: the printer configuration searched for MCUs. When
# unset, the usual locations are tried. Set autodetect to false to
# disable all guessing.
#klipper_config: ~/printer_data/config/printer.cfg
#autodetect: false

# Where saved build profiles and archived firmware live.
#flavors_dir: ~/.kqf/flavors
#firmware_dir: ~/.kqf/firmware

# One entry per MCU. Every MCU must name a flavor; the rest is
# resolved from the printer configuration and the flavor's saved
# build profile. flash_* keys pass method-specific options through.
#mcus:
#  mcu:
#    flavor: mainboard
#  toolhead:
#    flavor: toolhead
#    flash_method: katapult
#    flash_mode: can
`

// Default returns the default configuration. These are the values a
// fresh install runs with before kqf.yml says otherwise.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".kqf")
	return &Config{
		FlavorsDir:    filepath.Join(dataDir, "flavors"),
		FirmwareDir:   filepath.Join(dataDir, "firmware"),
		CachePath:     filepath.Join(dataDir, "cache.db"),
		FlashtoolPath: filepath.Join(dataDir, "lib", "flashtool.py"),
		Autodetect:    true,
	}
}

// DefaultPath returns where kqf.yml lives: $KQF_CONFIG if set,
// otherwise ~/.config/kqf/kqf.yml.
func DefaultPath() string {
	if env := os.Getenv("KQF_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kqf", "kqf.yml")
}

// LoadFile loads configuration from path on top of the defaults.
// Unknown keys are an error. An empty file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration at %s; run 'kqf config wizard' to create one", path)
		}
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.expandVariables()
	cfg.applyAutodetection()
	return cfg, nil
}

// expandVariables expands ~ and ${VAR} / ${VAR:-default} in every path
// field.
func (c *Config) expandVariables() {
	home, _ := os.UserHomeDir()
	vars := map[string]string{"HOME": home}
	for _, p := range []*string{
		&c.KlipperRepo,
		&c.KlipperConfig,
		&c.FlavorsDir,
		&c.FirmwareDir,
		&c.CachePath,
		&c.FlashtoolPath,
	} {
		*p = expandPath(*p, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandPath(s string, vars map[string]string) string {
	s = varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
	if s == "~" {
		return vars["HOME"]
	}
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		return filepath.Join(vars["HOME"], rest)
	}
	return s
}

func (c *Config) applyAutodetection() {
	if !c.Autodetect {
		return
	}
	home, _ := os.UserHomeDir()
	if c.KlipperRepo == "" {
		c.KlipperRepo = findKlipperRepo(home)
	}
	if c.KlipperConfig == "" {
		c.KlipperConfig = findKlipperConfig(home, "/etc")
	}
}

// findKlipperRepo checks the usual checkout locations. A directory
// counts only if it is a git checkout that actually contains klippy.
func findKlipperRepo(home string) string {
	for _, dir := range []string{
		filepath.Join(home, "klipper"),
		filepath.Join(home, "src", "klipper"),
		filepath.Join(home, "vcs", "klipper"),
	} {
		if isKlipperRepo(dir) {
			return dir
		}
	}
	return ""
}

func isKlipperRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	if err != nil || !info.IsDir() {
		return false
	}
	info, err = os.Stat(filepath.Join(dir, "klippy", "klippy.py"))
	return err == nil && !info.IsDir()
}

func findKlipperConfig(home, etc string) string {
	for _, path := range []string{
		filepath.Join(home, "printer_data", "config", "printer.cfg"),
		filepath.Join(etc, "klipper", "printer.cfg"),
	} {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.KlipperRepo == "" {
		errs = append(errs, fmt.Errorf("klipper_repo is required and no checkout was found to autodetect"))
	}
	if c.FlavorsDir == "" {
		errs = append(errs, fmt.Errorf("flavors_dir is required"))
	}
	if c.FirmwareDir == "" {
		errs = append(errs, fmt.Errorf("firmware_dir is required"))
	}
	names := make([]string, 0, len(c.MCUs))
	for name := range c.MCUs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c.MCUs[name] == nil || c.MCUs[name].Flavor == "" {
			errs = append(errs, fmt.Errorf("mcus.%s: flavor is required", name))
		}
	}
	return errors.Join(errs...)
}
