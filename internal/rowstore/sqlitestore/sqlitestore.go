// Package sqlitestore is the production contracts.RowStore implementation,
// backed by github.com/mattn/go-sqlite3. It keeps every cabs row (claims,
// cache bookkeeping, in-database blob content) in a single generic rows table rather than a
// typed table per struct, matching the "small transactional key/value row
// interface" cabs needs without growing into a generic ORM.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
)

// Store is a SQLite-backed RowStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the rows table exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite only tolerates a single writer; serialize via one connection
	// so concurrent transactions queue for it rather than racing for the lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Begin starts a new transaction on the store's single connection, so it
// waits until any other open transaction has finished.
func (s *Store) Begin(ctx context.Context) (contracts.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &tx{sqlTx: sqlTx}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

type tx struct {
	sqlTx *sql.Tx
	done  bool
}

func (t *tx) Get(ctx context.Context, table, key string, dest any) error {
	var data []byte
	err := t.sqlTx.QueryRowContext(ctx,
		`SELECT value FROM rows WHERE table_name = ? AND key = ?`, table, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", table, key, err)
	}
	return json.Unmarshal(data, dest)
}

func (t *tx) Put(ctx context.Context, table, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = t.sqlTx.ExecContext(ctx,
		`INSERT INTO rows (table_name, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (table_name, key) DO UPDATE SET value = excluded.value`,
		table, key, data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, table, key string) error {
	_, err := t.sqlTx.ExecContext(ctx,
		`DELETE FROM rows WHERE table_name = ? AND key = ?`, table, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (t *tx) Scan(ctx context.Context, table string, fn func(key string, value []byte) error) error {
	rows, err := t.sqlTx.QueryContext(ctx,
		`SELECT key, value FROM rows WHERE table_name = ?`, table)
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return err
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.sqlTx.Commit()
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.sqlTx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
