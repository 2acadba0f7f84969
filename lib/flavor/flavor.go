// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flavor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store manages the saved build profiles and the archived firmware.
type Store struct {
	flavorsDir  string
	firmwareDir string

	mu       sync.Mutex
	kconfigs map[string]map[string]string
}

// NewStore returns a Store over the given directories. Neither needs
// to exist yet; they are created when something is first saved.
func NewStore(flavorsDir, firmwareDir string) *Store {
	return &Store{
		flavorsDir:  flavorsDir,
		firmwareDir: firmwareDir,
		kconfigs:    make(map[string]map[string]string),
	}
}

// Dir returns the flavor store directory.
func (s *Store) Dir() string {
	return s.flavorsDir
}

// Path returns where the flavor's kconfig is persisted.
func (s *Store) Path(flavor string) string {
	return filepath.Join(s.flavorsDir, flavor+".config")
}

// Exists reports whether the flavor has a persisted kconfig.
func (s *Store) Exists(flavor string) bool {
	info, err := os.Stat(s.Path(flavor))
	return err == nil && !info.IsDir()
}

// ListExisting returns the names of every saved flavor, sorted. A
// missing store directory yields an empty list, not an error.
func (s *Store) ListExisting() []string {
	entries, err := os.ReadDir(s.flavorsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".config"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ConfigVariable returns the value of a variable in the flavor's
// saved kconfig, or "" if the flavor or the variable is absent. The
// kconfig parses lazily and stays cached until [Store.Invalidate].
func (s *Store) ConfigVariable(flavor, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vars, ok := s.kconfigs[flavor]
	if !ok {
		var err error
		vars, err = parseKconfig(s.Path(flavor))
		if err != nil {
			return "", err
		}
		s.kconfigs[flavor] = vars
	}
	return vars[name], nil
}

// Invalidate drops the cached kconfig parse for flavor. The workspace
// calls this after saving a kconfig back to the store.
func (s *Store) Invalidate(flavor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kconfigs, flavor)
}

// parseKconfig reads KEY=VALUE lines. Blank lines and # comments are
// ignored and double-quoted values are dequoted. A missing file is an
// empty map: an unsaved flavor simply has no variables yet.
func parseKconfig(path string) (map[string]string, error) {
	vars := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return vars, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
		}
		vars[key] = value
	}
	return vars, nil
}

// FirmwarePath returns the directory holding the flavor's archived
// firmware versions.
func (s *Store) FirmwarePath(flavor string) string {
	return filepath.Join(s.firmwareDir, flavor)
}

// VersionPath returns the directory of one archived version.
func (s *Store) VersionPath(flavor, version string) string {
	return filepath.Join(s.firmwareDir, flavor, version)
}

// ListFirmwareVersions returns the archived versions holding a
// complete artifact set: klipper.dict next to at least one firmware
// image. Incomplete snapshots are filtered out, not errors.
func (s *Store) ListFirmwareVersions(flavor string) []string {
	entries, err := os.ReadDir(s.FirmwarePath(flavor))
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && snapshotComplete(s.VersionPath(flavor, e.Name())) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions
}

func snapshotComplete(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "klipper.dict")); err != nil {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "klipper.dict" {
			continue
		}
		if isArtifact(name) {
			return true
		}
	}
	return false
}

// isArtifact reports whether a file name is a klipper build output
// (klipper.bin, klipper.elf, klipper.dict, klipper.uf2, ...).
func isArtifact(name string) bool {
	return strings.TrimSuffix(name, filepath.Ext(name)) == "klipper"
}
