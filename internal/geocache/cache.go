// Package geocache persists geocode results in a local SQLite database so
// repeated fetches of overlapping files do not re-bill the lookup service.
package geocache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

// Entry is one cached lookup. Matched=false records a zero-result lookup so
// the address is not re-queried.
type Entry struct {
	Matched bool
	Result  geocode.Result
}

// Cache is a SQLite-backed address→coordinate cache.
type Cache struct {
	db *sql.DB
}

const migration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	formatted    TEXT NOT NULL,
	matched      INTEGER NOT NULL,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Open opens (creating if needed) the cache database at path and configures
// WAL mode.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "geocache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "geocache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "geocache: migrate")
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up a cached result for the address. found=false means the
// address has never been resolved.
func (c *Cache) Get(ctx context.Context, address string) (*Entry, bool, error) {
	key := cacheKey(address)

	var entry Entry
	var matched int
	row := c.db.QueryRowContext(ctx,
		"SELECT latitude, longitude, formatted, matched FROM geocode_cache WHERE address_hash = ?", key)
	err := row.Scan(&entry.Result.Latitude, &entry.Result.Longitude, &entry.Result.FormattedAddress, &matched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "geocache: scan")
	}
	entry.Matched = matched != 0

	zap.L().Debug("geocode cache hit",
		zap.String("key", key[:12]),
		zap.Bool("matched", entry.Matched),
	)
	return &entry, true, nil
}

// Put stores a lookup outcome, replacing any previous entry for the address.
func (c *Cache) Put(ctx context.Context, address string, entry Entry) error {
	matched := 0
	if entry.Matched {
		matched = 1
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, formatted, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			formatted = excluded.formatted,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		cacheKey(address), entry.Result.Latitude, entry.Result.Longitude, entry.Result.FormattedAddress, matched)
	return eris.Wrap(err, "geocache: put")
}

// cacheKey returns SHA-256 hex of the normalized address.
func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
