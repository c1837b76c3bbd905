package sqlitestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/rowstore/sqlitestore"
)

type row struct {
	Value string
}

func openTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetCommit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "widgets", "a", row{Value: "one"}))
	require.NoError(t, tx.Commit())

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	var got row
	require.NoError(t, tx.Get(ctx, "widgets", "a", &got))
	assert.Equal(t, "one", got.Value)
}

func TestPutUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "widgets", "a", row{Value: "one"}))
	require.NoError(t, tx.Put(ctx, "widgets", "a", row{Value: "two"}))
	require.NoError(t, tx.Commit())

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	var got row
	require.NoError(t, tx.Get(ctx, "widgets", "a", &got))
	assert.Equal(t, "two", got.Value)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, "widgets", "a", row{Value: "one"}))
	require.NoError(t, tx.Rollback())

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	var got row
	err = tx.Get(ctx, "widgets", "a", &got)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDoubleRollbackIsSafe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, tx.Rollback())
}
