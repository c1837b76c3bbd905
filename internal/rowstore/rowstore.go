// Package rowstore defines the small transactional row interface cabs uses
// for claims, cache bookkeeping and in-database blob content. It is deliberately not a generic
// typed-table ORM: callers own their row types, table names and keys, and
// marshal/unmarshal their own values. Two implementations are provided:
// memstore (pure Go, for unit tests) and sqlitestore (backed by
// github.com/mattn/go-sqlite3, for production use).
package rowstore

import (
	"context"

	"github.com/cabshq/cabs/internal/contracts"
)

// WithTx runs fn inside a transaction begun on store, committing on success
// and rolling back if fn returns an error or panics. It mirrors keppel's
// RollbackUnlessCommitted deferred-cleanup idiom.
func WithTx(ctx context.Context, store contracts.RowStore, fn func(tx contracts.Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
