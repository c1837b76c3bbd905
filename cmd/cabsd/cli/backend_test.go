package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/cmd/cabsd/config"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
	"github.com/cabshq/cabs/internal/rowstore/memstore"
)

func writeAndRead(t *testing.T, b contracts.BlobBackend, content string) string {
	t.Helper()
	ctx := context.Background()
	d, n, err := digest.New().Sum(strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, b.Add(ctx, d, n, strings.NewReader(content)))

	r, err := b.Open(ctx, d)
	require.NoError(t, err)
	defer r.Close()
	got := make([]byte, n)
	_, err = r.Read(got)
	require.NoError(t, err)
	return string(got)
}

func TestBuildBackendDefaultsToMemory(t *testing.T) {
	t.Parallel()

	rows := memstore.New()
	b, err := buildBackend(context.Background(), config.BackendConfig{}, rows)
	require.NoError(t, err)

	assert.Equal(t, "hello", writeAndRead(t, b, "hello"))
}

func TestBuildBackendDatabase(t *testing.T) {
	t.Parallel()

	rows := memstore.New()
	b, err := buildBackend(context.Background(), config.BackendConfig{Kind: "database"}, rows)
	require.NoError(t, err)

	assert.Equal(t, "row-backed", writeAndRead(t, b, "row-backed"))
}

func TestBuildBackendSizeTiered(t *testing.T) {
	t.Parallel()

	rows := memstore.New()
	b, err := buildBackend(context.Background(), config.BackendConfig{
		Kind:                "memory",
		SizeTieredThreshold: 4,
	}, rows)
	require.NoError(t, err)

	assert.Equal(t, "sm", writeAndRead(t, b, "sm"))
	assert.Equal(t, "bigger blob", writeAndRead(t, b, "bigger blob"))
}

func TestBuildBackendLocalRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := buildBackend(context.Background(), config.BackendConfig{Kind: "local"}, memstore.New())
	assert.Error(t, err)
}

func TestBuildBackendUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := buildBackend(context.Background(), config.BackendConfig{Kind: "bogus"}, memstore.New())
	assert.Error(t, err)
}

func TestBuildRowStoreMemoryWhenPathEmpty(t *testing.T) {
	t.Parallel()

	rows, err := buildRowStore("")
	require.NoError(t, err)
	defer rows.Close()

	tx, err := rows.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}
