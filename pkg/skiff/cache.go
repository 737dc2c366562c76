package skiff

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/skiff/pkg/bytecode"
)

// ModuleCache persists compiled modules in a SQLite database keyed by
// the SHA-256 of the source text. Because the wire encoding is
// canonical, a cache hit yields byte-identical bytecode to a fresh
// compile.
type ModuleCache struct {
	db *sql.DB
}

// OpenModuleCache opens or creates the cache database.
func OpenModuleCache(path string) (*ModuleCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening module cache: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring module cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		hash       TEXT PRIMARY KEY,
		bytecode   BLOB NOT NULL,
		version    INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating module cache schema: %w", err)
	}
	return &ModuleCache{db: db}, nil
}

// Close releases the database.
func (c *ModuleCache) Close() error { return c.db.Close() }

func sourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached module for a source text, if present and
// built by the current bytecode version.
func (c *ModuleCache) Get(source string) (*bytecode.Module, bool) {
	var data []byte
	var version int
	err := c.db.QueryRow(
		"SELECT bytecode, version FROM modules WHERE hash = ?",
		sourceHash(source),
	).Scan(&data, &version)
	if err != nil {
		return nil, false
	}
	if version != int(bytecode.BytecodeVersion) {
		return nil, false
	}
	module, err := bytecode.DecodeModule(data)
	if err != nil {
		return nil, false
	}
	return module, true
}

// Put stores a compiled module.
func (c *ModuleCache) Put(source string, module *bytecode.Module) error {
	data, err := bytecode.EncodeModule(module)
	if err != nil {
		return fmt.Errorf("encoding module for cache: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO modules (hash, bytecode, version, created_at)
		 VALUES (?, ?, ?, ?)`,
		sourceHash(source), data, int(bytecode.BytecodeVersion), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing module in cache: %w", err)
	}
	return nil
}

// Prune removes entries older than the given age.
func (c *ModuleCache) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := c.db.Exec("DELETE FROM modules WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning module cache: %w", err)
	}
	return res.RowsAffected()
}
