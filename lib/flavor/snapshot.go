// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package flavor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/Laikulo/klipper-quickflash/lib/codec"
)

const manifestName = "manifest.cbor"

const manifestVersion = 1

// artifactDomainKey is the BLAKE3 keyed-hash domain for firmware
// artifacts: the ASCII encoding of the domain name, zero-padded to 32
// bytes. A fixed constant; changing it invalidates every existing
// snapshot manifest.
var artifactDomainKey = [32]byte{
	'k', 'q', 'f', '.', 'f', 'i', 'r', 'm', 'w', 'a', 'r', 'e', '.',
	'a', 'r', 't', 'i', 'f', 'a', 'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// manifest records what a snapshot should contain. It lives as
// manifest.cbor next to the artifacts.
type manifest struct {
	Version   int            `cbor:"version"`
	CreatedAt int64          `cbor:"created_at"`
	Files     []manifestFile `cbor:"files"`
}

type manifestFile struct {
	Name   string   `cbor:"name"`
	Size   int64    `cbor:"size"`
	Digest [32]byte `cbor:"digest"`
}

// ArchiveArtifacts copies every klipper.* build output from the
// workspace into the version directory and writes a manifest with
// sizes and keyed BLAKE3 digests.
func (w *Workspace) ArchiveArtifacts(flavor, version string) error {
	outDir := filepath.Join(w.repo, "out")
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("reading build outputs: %w", err)
	}
	destDir := w.store.VersionPath(flavor, version)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	m := manifest{
		Version:   manifestVersion,
		CreatedAt: w.clock.Now().Unix(),
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isArtifact(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(destDir, name), data, 0o644); err != nil {
			return err
		}
		w.logger.Debug("archived artifact",
			"file", name, "flavor", flavor, "version", version)
		m.Files = append(m.Files, manifestFile{
			Name:   name,
			Size:   int64(len(data)),
			Digest: artifactDigest(data),
		})
	}
	if len(m.Files) == 0 {
		return fmt.Errorf("no klipper.* artifacts in %s; did the build run?", outDir)
	}
	return writeManifest(destDir, &m)
}

// RestoreArtifacts copies a snapshot's klipper.* files back into the
// workspace's out directory. Digests are verified against the
// manifest when one exists; a mismatch means the snapshot is corrupt
// and is an error. A missing manifest (pre-manifest snapshot) only
// rates a debug note.
func (w *Workspace) RestoreArtifacts(flavor, version string) error {
	srcDir := w.store.VersionPath(flavor, version)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("reading snapshot %s/%s: %w", flavor, version, err)
	}
	digests, err := readManifestDigests(srcDir)
	if err != nil {
		return fmt.Errorf("snapshot %s/%s: %w", flavor, version, err)
	}
	if digests == nil {
		w.logger.Debug("snapshot has no manifest, skipping verification",
			"flavor", flavor, "version", version)
	}
	outDir := filepath.Join(w.repo, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isArtifact(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			return err
		}
		if want, ok := digests[name]; ok && want != artifactDigest(data) {
			return fmt.Errorf("snapshot %s/%s: %s does not match its manifest digest",
				flavor, version, name)
		}
		w.logger.Debug("restoring artifact", "file", name)
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func artifactDigest(data []byte) [32]byte {
	// NewKeyed only fails for a wrong key length, which the fixed-size
	// array rules out.
	hasher, err := blake3.NewKeyed(artifactDomainKey[:])
	if err != nil {
		panic("flavor: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// writeManifest writes the manifest to a temporary file and renames
// it into place, so a crash never leaves a torn manifest.
func writeManifest(dir string, m *manifest) error {
	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", manifestName, err)
	}
	tmp, err := os.CreateTemp(dir, "manifest-*.cbor")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, manifestName)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// readManifestDigests returns the digest per artifact name, or nil if
// the snapshot predates manifests.
func readManifestDigests(dir string) (map[string][32]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", manifestName, err)
	}
	digests := make(map[string][32]byte, len(m.Files))
	for _, f := range m.Files {
		digests[f.Name] = f.Digest
	}
	return digests, nil
}
