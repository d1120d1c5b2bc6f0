package statcache

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uav4geo/QRasterMerge/internal/histmatch"
)

// schema.sql defines the layer_stats table holding one serialized
// LayerStats blob per cache key.
//
//go:embed schema.sql
var schemaSQL string

// Cache is a SQLite-backed store of layer histogram statistics.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats cache: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats cache schema: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// DefaultPath returns the per-user cache database location.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(dir, "qrastermerge", "stats.db"), nil
}

// Path returns the database file location.
func (c *Cache) Path() string { return c.path }

// Close releases the database.
func (c *Cache) Close() error { return c.db.Close() }

// Key derives the cache key for a layer matched against a reference in a
// given mode. Fingerprints embed path, size and mtime, so any change to
// either file produces a fresh key.
func Key(layerFP, refFP, mode string) string {
	sum := sha256.Sum256([]byte(layerFP + "\x00" + refFP + "\x00" + mode))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached stats for key, or ok=false on a miss.
func (c *Cache) Get(key string) (*histmatch.LayerStats, bool, error) {
	var blob []byte
	err := c.db.QueryRow(`SELECT blob FROM layer_stats WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stats cache get: %w", err)
	}
	stats, err := decode(blob)
	if err != nil {
		// A corrupt row is a miss, not a failure: drop it and recompute.
		_, _ = c.db.Exec(`DELETE FROM layer_stats WHERE key = ?`, key)
		return nil, false, nil
	}
	return stats, true, nil
}

// Put stores stats under key, replacing any previous entry.
func (c *Cache) Put(key string, stats *histmatch.LayerStats) error {
	blob, err := encode(stats)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT INTO layer_stats (key, created_unix, blob) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET created_unix = excluded.created_unix, blob = excluded.blob`,
		key, time.Now().Unix(), blob)
	if err != nil {
		return fmt.Errorf("stats cache put: %w", err)
	}
	return nil
}

// Clear drops every cached entry.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM layer_stats`); err != nil {
		return fmt.Errorf("stats cache clear: %w", err)
	}
	return nil
}

// Count returns the number of cached entries.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM layer_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("stats cache count: %w", err)
	}
	return n, nil
}

// encode gob-encodes and compresses stats into a blob.
func encode(stats *histmatch.LayerStats) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(stats); err != nil {
		gz.Close()
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress stats: %w", err)
	}
	return buf.Bytes(), nil
}

// decode decompresses and gob-decodes a blob.
func decode(blob []byte) (*histmatch.LayerStats, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty stats blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decompress stats: %w", err)
	}
	defer gz.Close()
	var stats histmatch.LayerStats
	if err := gob.NewDecoder(gz).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &stats, nil
}
