// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package flavor manages named Klipper build profiles and the single
// shared build workspace they take turns occupying.
//
// A flavor is a saved kconfig: the build configuration for one kind of
// board, stored as <flavorsDir>/<name>.config. The Klipper source tree
// only has one .config slot, so working on a flavor means loading its
// kconfig into the tree, doing the work, and saving the (possibly
// modified) kconfig back. [Workspace] mediates that occupancy:
// Activate loads a flavor and refuses while another holds the tree,
// and the deferred Deactivate persists the kconfig back to the store
// on every exit path. A pre-existing .config the store does not know
// about is renamed aside, never discarded.
//
// Built firmware is archived per flavor and version under
// <firmwareDir>/<flavor>/<version>/, together with a CBOR manifest of
// sizes and keyed BLAKE3 digests so a snapshot restored months later
// is known to be intact.
package flavor
