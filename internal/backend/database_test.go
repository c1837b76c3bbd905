package backend_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/backend"
	"github.com/cabshq/cabs/internal/rowstore/memstore"
)

func TestInDatabaseAddOpenRoundTrip(t *testing.T) {
	t.Parallel()

	b := backend.NewInDatabase(memstore.New())
	ctx := context.Background()
	content := "row-backed blob"
	d, n := digestOf(t, content)

	require.NoError(t, b.Add(ctx, d, n, strings.NewReader(content)))

	r, err := b.Open(ctx, d)
	require.NoError(t, err)
	defer r.Close()
	got := make([]byte, len(content))
	_, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	info, err := b.GetInfo(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, n, info.ContentLength)
}

func TestInDatabaseOpenMissingIsNotFound(t *testing.T) {
	t.Parallel()

	b := backend.NewInDatabase(memstore.New())
	_, err := b.Open(context.Background(), core.Digest("absent"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInDatabaseIterAndClear(t *testing.T) {
	t.Parallel()

	b := backend.NewInDatabase(memstore.New())
	ctx := context.Background()
	d1, n1 := digestOf(t, "alpha")
	d2, n2 := digestOf(t, "beta")
	require.NoError(t, b.Add(ctx, d1, n1, strings.NewReader("alpha")))
	require.NoError(t, b.Add(ctx, d2, n2, strings.NewReader("beta")))

	digests, err := b.Iter(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.Digest{d1, d2}, digests)

	require.NoError(t, b.Clear(ctx))
	digests, err = b.Iter(ctx)
	require.NoError(t, err)
	assert.Empty(t, digests)
}
