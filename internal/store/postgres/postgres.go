// Package postgres implements the key/value storage port on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sbellem/SiennaNetwork/internal/store"
)

// PgxPool is a minimal abstraction over a Postgres connection pool.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Close shuts down the pool and frees resources.
	Close()
}

// DB is a store.Store over the kv table
type DB struct{ Pool PgxPool }

var _ store.Batcher = (*DB)(nil)

// New creates a new connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

const (
	sqlGet    = `SELECT value FROM kv WHERE key=$1`
	sqlUpsert = `INSERT INTO kv (key, value) VALUES ($1,$2) ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`
	sqlDelete = `DELETE FROM kv WHERE key=$1`
)

// Get implements store.Store
func (db *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	if err := db.Pool.QueryRow(ctx, sqlGet, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set implements store.Store
func (db *DB) Set(ctx context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := db.Pool.Exec(ctx, sqlUpsert, key, value); err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// Delete implements store.Store
func (db *DB) Delete(ctx context.Context, key []byte) error {
	if _, err := db.Pool.Exec(ctx, sqlDelete, key); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// WriteBatch applies all ops in one transaction
func (db *DB) WriteBatch(ctx context.Context, ops []store.Op) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	for i, op := range ops {
		if op.Value == nil {
			_, err = tx.Exec(ctx, sqlDelete, op.Key)
		} else {
			_, err = tx.Exec(ctx, sqlUpsert, op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("op[%d]: %w", i, err)
		}
	}
	return nil
}
