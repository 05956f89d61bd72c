package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteKV is the canonical durable store.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV creates/opens the store database at path.
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process engine. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	kv := &SQLiteKV{db: db}
	if err := kv.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return kv, nil
}

func (s *SQLiteKV) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS kv_items (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init kv schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteKV) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteKV) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_items (key, value, updated_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
