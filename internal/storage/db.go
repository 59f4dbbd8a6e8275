// Package storage keeps local state of the client in SQLite: snapshots of
// tracks fetched from the server, so the queue survives a lost connection,
// a log of played tracks and a small key/value table.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	_ "modernc.org/sqlite"
)

var log = logging.Logger("storage")

// DB wraps the cache database.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _tracks (
			key         TEXT PRIMARY KEY,
			title       TEXT DEFAULT '',
			album       TEXT DEFAULT '',
			interpret   TEXT DEFAULT '',
			people      TEXT DEFAULT '',
			composer    TEXT DEFAULT '',
			fingerprint TEXT DEFAULT '',
			duration    REAL DEFAULT 0,
			favs_count  INTEGER DEFAULT 0,
			channels    INTEGER DEFAULT 2,
			fetched_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tracks table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _plays (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			track_key TEXT NOT NULL,
			played_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create plays table: %w", err)
	}

	log.Debugf("cache open at %s", path)
	return &DB{db: db, path: path}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// GetMeta returns a value from the key/value table.
func (d *DB) GetMeta(key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var v string
	err := d.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetMeta stores a value in the key/value table.
func (d *DB) SetMeta(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO _meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
