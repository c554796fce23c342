package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStorage persists namespaces in a SQLite database.
// Insertion order is kept by an autoincrementing sequence column.
type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

var sqliteSchema = []string{
	"CREATE TABLE IF NOT EXISTS namespaces (name TEXT PRIMARY KEY)",
	`CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		stored INTEGER NOT NULL,
		bytes BLOB,
		UNIQUE (namespace, key)
	)`,
	"CREATE INDEX IF NOT EXISTS entries_namespace_idx ON entries (namespace, seq)",
	"PRAGMA journal_mode=WAL",
}

// NewSQLiteStorage opens (or creates) the database at filename.
// Use "file::memory:?cache=shared" for a shared in-memory database.
func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", filename, err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Cache, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO namespaces (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", name, err)
	}
	return &SQLiteCache{storage: s, name: name}, nil
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM namespaces ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ?", name); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM namespaces WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SQLiteCache is one namespace of a SQLiteStorage.
type SQLiteCache struct {
	storage *SQLiteStorage
	name    string
}

func (c *SQLiteCache) Name() string {
	return c.name
}

func (c *SQLiteCache) Match(ctx context.Context, key string) (Entry, bool, error) {
	var stored int64
	entry := Entry{Key: key}
	err := c.storage.db.QueryRowContext(ctx,
		"SELECT stored, bytes FROM entries WHERE namespace = ? AND key = ?", c.name, key).
		Scan(&stored, &entry.Bytes)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry.StoredAt = time.Unix(0, stored)
	return entry, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, bytes []byte) error {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	tx, err := c.storage.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// delete first so a replaced key gets a new sequence number
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ? AND key = ?", c.name, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO entries (namespace, key, stored, bytes) VALUES (?, ?, ?, ?)",
		c.name, key, time.Now().UnixNano(), bytes); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) (bool, error) {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	res, err := c.storage.db.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ? AND key = ?", c.name, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (c *SQLiteCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.storage.db.QueryContext(ctx, "SELECT key FROM entries WHERE namespace = ? ORDER BY seq", c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
