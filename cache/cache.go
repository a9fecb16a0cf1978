// Package cache stores encoder results in SQLite so repeated encodings of
// the same text are served without searching again.
package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("apophis.cache")

// Key identifies one encoding: the target text together with the search
// parameters that shaped the result.
type Key [blake2b.Size256]byte

// KeyFor derives the cache key for target encoded with the given search
// parameters.
func KeyFor(target string, candidates, maxExpansions int) Key {
	h, _ := blake2b.New256(nil)
	var params [16]byte
	binary.BigEndian.PutUint64(params[:8], uint64(candidates))
	binary.BigEndian.PutUint64(params[8:], uint64(maxExpansions))
	h.Write(params[:])
	h.Write([]byte(target))
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Cache is a persistent key to exotic-source map.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the pragma below in effect for every query.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS encodings (
		key TEXT PRIMARY KEY,
		target_len INTEGER NOT NULL,
		source TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened encoding cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file.
func (c *Cache) Path() string { return c.path }

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached source for key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key Key) (source string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, "SELECT source FROM encodings WHERE key = ?", key.String()).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debugf("miss %s", key)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying encoding: %w", err)
	}
	log.Debugf("hit %s", key)
	return source, true, nil
}

// Put stores source under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key Key, targetLen int, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO encodings (key, target_len, source) VALUES (?, ?, ?)",
		key.String(), targetLen, source,
	)
	if err != nil {
		return fmt.Errorf("saving encoding: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, "DELETE FROM encodings WHERE key = ?", key.String()); err != nil {
		return fmt.Errorf("deleting encoding: %w", err)
	}
	return nil
}

// Len returns the number of cached encodings.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM encodings").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting encodings: %w", err)
	}
	return n, nil
}
