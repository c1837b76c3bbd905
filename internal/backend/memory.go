package backend

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
)

// InMemory stores blobs as byte slices in a map, bounded by maxSize.
// Grounded on blobular's InMemBlobStore; used for tests and for the small
// "hot" tier of a size-tiered store.
type InMemory struct {
	mu      sync.RWMutex
	blobs   map[core.Digest][]byte
	maxSize int64
	engine  digest.Engine
}

var _ contracts.BlobBackend = (*InMemory)(nil)

// NewInMemory returns an empty in-memory backend. A maxSize of 0 means no
// per-blob size limit.
func NewInMemory(maxSize int64) *InMemory {
	return &InMemory{blobs: make(map[core.Digest][]byte), maxSize: maxSize, engine: digest.New()}
}

func (b *InMemory) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	content, ok := b.blobs[d]
	if !ok {
		return nil, core.ErrNotFound
	}
	return io.NopCloser(newByteReader(content)), nil
}

func (b *InMemory) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	if b.maxSize > 0 && contentLength > b.maxSize {
		return fmt.Errorf("%w: blob is %s, limit is %s", core.ErrCacheFull,
			humanize.Bytes(uint64(contentLength)), humanize.Bytes(uint64(b.maxSize)))
	}

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

	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[d] = data
	return nil
}

func (b *InMemory) Has(ctx context.Context, d core.Digest) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[d]
	return ok, nil
}

func (b *InMemory) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	content, ok := b.blobs[d]
	if !ok {
		return core.BlobInfo{}, core.ErrNotFound
	}
	return core.BlobInfo{Digest: d, ContentLength: int64(len(content))}, nil
}

func (b *InMemory) Delete(ctx context.Context, d core.Digest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, d)
	return nil
}

func (b *InMemory) Iter(ctx context.Context) ([]core.Digest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	digests := make([]core.Digest, 0, len(b.blobs))
	for d := range b.blobs {
		digests = append(digests, d)
	}
	return digests, nil
}

func (b *InMemory) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs = make(map[core.Digest][]byte)
	return nil
}

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
