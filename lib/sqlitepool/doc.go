// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

// Package sqlitepool opens SQLite connection pools with kqf-standard
// pragmas (WAL journaling, normal synchronous, busy timeout). The
// hardware cache is the only database kqf maintains; the pool exists
// so that cache reads during MCU resolution and writes from probe
// results share one configured connection source.
package sqlitepool
