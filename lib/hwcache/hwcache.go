// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package hwcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Laikulo/klipper-quickflash/lib/clock"
	"github.com/Laikulo/klipper-quickflash/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS observation (
	context     TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	observed_at INTEGER NOT NULL,
	PRIMARY KEY (context, key)
) WITHOUT ROWID;
`

// Cache is the persistent hardware-observation store.
type Cache struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	clock  clock.Clock
}

// Open opens (creating if necessary) the cache database at path. The
// parent directory is created when missing.
func Open(path string, logger *slog.Logger, clk clock.Clock) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("hwcache: creating %s: %w", filepath.Dir(path), err)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hwcache: %w", err)
	}
	return &Cache{pool: pool, logger: logger, clock: clk}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.pool.Close()
}

// Put stores value under (cacheContext, key), overwriting any previous
// observation.
func (c *Cache) Put(ctx context.Context, cacheContext, key, value string) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO observation (context, key, value, observed_at)
		VALUES (:context, :key, :value, :observed_at)
		ON CONFLICT (context, key) DO UPDATE SET
			value = excluded.value,
			observed_at = excluded.observed_at`,
		&sqlitex.ExecOptions{
			Named: map[string]any{
				":context":     cacheContext,
				":key":         key,
				":value":       value,
				":observed_at": c.clock.Now().Unix(),
			},
		})
	if err != nil {
		return fmt.Errorf("hwcache: storing %s/%s: %w", cacheContext, key, err)
	}
	return nil
}

// Get returns the stored value under (cacheContext, key) and whether
// one exists.
func (c *Cache) Get(ctx context.Context, cacheContext, key string) (string, bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return "", false, err
	}
	defer c.pool.Put(conn)

	var value string
	found := false
	err = sqlitex.Execute(conn, `
		SELECT value FROM observation
		WHERE context = :context AND key = :key`,
		&sqlitex.ExecOptions{
			Named: map[string]any{
				":context": cacheContext,
				":key":     key,
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", false, fmt.Errorf("hwcache: reading %s/%s: %w", cacheContext, key, err)
	}
	return value, found, nil
}

// Filter implements the detection-fallback pattern: a non-empty fresh
// value is persisted and returned; otherwise the cached value is
// returned when present; otherwise def. Storage failures in either
// direction degrade to a logged warning, never an error.
func (c *Cache) Filter(ctx context.Context, cacheContext, key, fresh, def string) string {
	if fresh != "" {
		if err := c.Put(ctx, cacheContext, key, fresh); err != nil {
			c.logger.Warn("hardware cache write failed",
				"context", cacheContext, "key", key, "error", err)
		}
		return fresh
	}
	value, found, err := c.Get(ctx, cacheContext, key)
	if err != nil {
		c.logger.Warn("hardware cache read failed",
			"context", cacheContext, "key", key, "error", err)
		return def
	}
	if !found {
		return def
	}
	return value
}
