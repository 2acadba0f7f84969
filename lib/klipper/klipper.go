// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package klipper

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config is a parsed Klipper configuration with all includes expanded.
type Config struct {
	sections map[string]map[string]string
}

// LiveConfiguration holds the daemon-reported communication facts for
// one MCU, with Klipper's own defaults applied (baud 250000, CAN
// interface can0). Fields not derivable from the section are empty.
type LiveConfiguration struct {
	CommType   string
	CommID     string
	CommDevice string
	CommSpeed  string
}

// ParseFile reads path and every file it includes.
func ParseFile(path string) (*Config, error) {
	p := &parser{
		visited:  make(map[string]bool),
		sections: make(map[string]map[string]string),
	}
	if err := p.parseFile(path); err != nil {
		return nil, err
	}
	return &Config{sections: p.sections}, nil
}

// MCUNames returns the MCU names defined in the configuration, sorted.
// The primary [mcu] section is named "mcu"; [mcu foo] is named "foo".
func (c *Config) MCUNames() []string {
	var names []string
	for section := range c.sections {
		if name, ok := mcuSectionName(section); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// MCU returns the live configuration for the named MCU and whether the
// daemon configuration defines it.
func (c *Config) MCU(name string) (LiveConfiguration, bool) {
	section := "mcu"
	if name != "mcu" {
		section = "mcu " + name
	}
	values, ok := c.sections[section]
	if !ok {
		return LiveConfiguration{}, false
	}

	var live LiveConfiguration
	if serial := values["serial"]; serial != "" {
		live.CommType = "serial"
		live.CommID = serial
		live.CommDevice = serial
		live.CommSpeed = values["baud"]
		if live.CommSpeed == "" {
			live.CommSpeed = "250000"
		}
	} else if uuid := values["canbus_uuid"]; uuid != "" {
		live.CommType = "can"
		live.CommID = uuid
		live.CommDevice = values["canbus_interface"]
		if live.CommDevice == "" {
			live.CommDevice = "can0"
		}
	}
	return live, true
}

// Lookup returns a raw setting value.
func (c *Config) Lookup(section, key string) (string, bool) {
	values, ok := c.sections[section]
	if !ok {
		return "", false
	}
	value, ok := values[key]
	return value, ok
}

func mcuSectionName(section string) (string, bool) {
	if section == "mcu" {
		return "mcu", true
	}
	if rest, ok := strings.CutPrefix(section, "mcu "); ok {
		return rest, true
	}
	return "", false
}

type parser struct {
	visited  map[string]bool
	sections map[string]map[string]string
	current  string
}

func (p *parser) parseFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if p.visited[abs] {
		return nil
	}
	p.visited[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading klipper config: %w", err)
	}

	for number, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}

		// Continuation lines extend the previous value (gcode blocks,
		// multi-line pin lists). Nothing kqf consumes is multi-line.
		if line[0] == ' ' || line[0] == '\t' {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			header := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				if err := p.include(abs, strings.TrimSpace(spec)); err != nil {
					return fmt.Errorf("%s:%d: %w", abs, number+1, err)
				}
				continue
			}
			p.current = header
			if p.sections[header] == nil {
				p.sections[header] = make(map[string]string)
			}
			continue
		}

		separator := strings.IndexAny(line, ":=")
		if separator < 0 {
			return fmt.Errorf("%s:%d: not a section header or key/value line: %q", abs, number+1, trimmed)
		}
		if p.current == "" {
			return fmt.Errorf("%s:%d: setting before any section header", abs, number+1)
		}
		key := strings.TrimSpace(line[:separator])
		value := strings.TrimSpace(line[separator+1:])
		p.sections[p.current][key] = value
	}
	return nil
}

// include expands one [include <glob>] directive. Matches are sorted
// for a stable read order. A glob that matches nothing is an error:
// a printer.cfg referencing a missing file is broken.
func (p *parser) include(from, spec string) error {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(from), spec))
	if err != nil {
		return fmt.Errorf("include %q: %w", spec, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("include %q matches no files", spec)
	}
	sort.Strings(matches)

	// Includes restore the including file's section afterwards: a
	// key after the directive still belongs to the section opened
	// before it.
	saved := p.current
	for _, match := range matches {
		p.current = ""
		if err := p.parseFile(match); err != nil {
			return err
		}
	}
	p.current = saved
	return nil
}
