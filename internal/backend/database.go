package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
	"github.com/cabshq/cabs/internal/rowstore"
)

const blobContentTable = "blob_content"

// blobContentRow is the row stored for each digest in an InDatabase
// backend, grounded on blobular's BlobContent dataclass.
type blobContentRow struct {
	Digest        core.Digest
	ContentLength int64
	Content       []byte
}

// InDatabase stores blob content as rows in a contracts.RowStore, grounded
// on blobular's OnDatabaseBlobStore. Intended for small blobs where the
// overhead of a filesystem or object store isn't worth it.
type InDatabase struct {
	store  contracts.RowStore
	engine digest.Engine
}

var _ contracts.BlobBackend = (*InDatabase)(nil)

// NewInDatabase returns an InDatabase backend persisting through store.
func NewInDatabase(store contracts.RowStore) *InDatabase {
	return &InDatabase{store: store, engine: digest.New()}
}

func (b *InDatabase) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	var row blobContentRow
	err := rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Get(ctx, blobContentTable, string(d), &row)
	})
	if err != nil {
		return nil, err
	}
	if len(row.Content) != int(row.ContentLength) {
		return nil, fmt.Errorf("%w: stored content is %d bytes, row says %d", core.ErrIntegrity, len(row.Content), row.ContentLength)
	}
	return io.NopCloser(bytes.NewReader(row.Content)), nil
}

func (b *InDatabase) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	hasher := b.engine.NewHasher()
	data, err := io.ReadAll(io.TeeReader(r, hasher))
	if err != nil {
		return err
	}
	if contentLength != 0 && int64(len(data)) != contentLength {
		return fmt.Errorf("%w: read %d bytes, expected %d", core.ErrDigestMismatch, len(data), contentLength)
	}
	if got := hasher.Digest(); got != d {
		return fmt.Errorf("%w: computed %s, expected %s", core.ErrDigestMismatch, got, d)
	}

	return rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Put(ctx, blobContentTable, string(d), blobContentRow{
			Digest:        d,
			ContentLength: int64(len(data)),
			Content:       data,
		})
	})
}

func (b *InDatabase) Has(ctx context.Context, d core.Digest) (bool, error) {
	var row blobContentRow
	err := rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Get(ctx, blobContentTable, string(d), &row)
	})
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *InDatabase) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	var row blobContentRow
	err := rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Get(ctx, blobContentTable, string(d), &row)
	})
	if err != nil {
		return core.BlobInfo{}, err
	}
	return core.BlobInfo{Digest: d, ContentLength: row.ContentLength}, nil
}

func (b *InDatabase) Delete(ctx context.Context, d core.Digest) error {
	return rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Delete(ctx, blobContentTable, string(d))
	})
}

func (b *InDatabase) Iter(ctx context.Context) ([]core.Digest, error) {
	var digests []core.Digest
	err := rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		return tx.Scan(ctx, blobContentTable, func(key string, value []byte) error {
			digests = append(digests, core.Digest(key))
			return nil
		})
	})
	return digests, err
}

func (b *InDatabase) Clear(ctx context.Context) error {
	digests, err := b.Iter(ctx)
	if err != nil {
		return err
	}
	return rowstore.WithTx(ctx, b.store, func(tx contracts.Tx) error {
		for _, d := range digests {
			if err := tx.Delete(ctx, blobContentTable, string(d)); err != nil {
				return err
			}
		}
		return nil
	})
}

