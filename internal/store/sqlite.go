package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLite persists the key/value state in a single SQLite table
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and runs migrations
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logrus.WithField("path", path).Info("SQLite store opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   BLOB PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	sqliteGet    = `SELECT value FROM kv WHERE key = ?`
	sqliteUpsert = `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	sqliteDelete = `DELETE FROM kv WHERE key = ?`
)

// Get implements Store
func (s *SQLite) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, sqliteGet, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set implements Store
func (s *SQLite) Set(ctx context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.WriteBatch(ctx, []Op{{Key: key, Value: value}})
}

// Delete implements Store
func (s *SQLite) Delete(ctx context.Context, key []byte) error {
	return s.WriteBatch(ctx, []Op{{Key: key}})
}

// WriteBatch implements Batcher; all ops commit in one SQL transaction
func (s *SQLite) WriteBatch(ctx context.Context, ops []Op) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("sqlite commit: %w", e)
		}
	}()

	for _, op := range ops {
		if op.Value == nil {
			_, err = tx.ExecContext(ctx, sqliteDelete, op.Key)
		} else {
			_, err = tx.ExecContext(ctx, sqliteUpsert, op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("sqlite write %q: %w", op.Key, err)
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
