// Package backend provides the blob backend implementations that satisfy
// contracts.BlobBackend: local filesystem, in-database, in-memory, object
// store, and remote HTTP. Each mirrors one of blobular's store/*.py backends.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
)

// LocalFile stores each blob as a read-only regular file named by digest
// under a root directory, grounded on blobular's LocalFileBlobStore: write
// via a temp file in the same directory, fsync, rename into place, then
// chmod read-only so nothing can corrupt a blob once it's visible.
type LocalFile struct {
	root   string
	engine digest.Engine
	locks  *keyLock
}

var _ contracts.BlobBackend = (*LocalFile)(nil)

// NewLocalFile returns a LocalFile backend rooted at dir, creating dir if
// it doesn't exist.
func NewLocalFile(dir string) (*LocalFile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalFile{root: dir, engine: digest.New(), locks: newKeyLock()}, nil
}

func (b *LocalFile) path(d core.Digest) string {
	return filepath.Join(b.root, string(d))
}

// Open returns a reader for digest's file, or core.ErrNotFound if absent.
func (b *LocalFile) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	f, err := os.Open(b.path(d))
	if os.IsNotExist(err) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Add writes r to a temp file, verifies its digest and length against the
// caller's assertion, then atomically renames it into place and marks it
// read-only.
func (b *LocalFile) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	unlock := b.locks.Lock(string(d))
	defer unlock()

	if has, err := b.hasLocked(d); err != nil {
		return err
	} else if has {
		// Idempotent: content-addressed, so an existing file with this
		// digest is already the right bytes.
		return nil
	}

	tmp, err := os.CreateTemp(b.root, string(d)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := b.engine.NewHasher()
	n, err := io.Copy(tmp, io.TeeReader(r, hasher))
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if contentLength != 0 && n != contentLength {
		return fmt.Errorf("%w: wrote %d bytes, expected %d", core.ErrDigestMismatch, n, contentLength)
	}
	if got := hasher.Digest(); got != d {
		return fmt.Errorf("%w: computed %s, expected %s", core.ErrDigestMismatch, got, d)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path(d)); err != nil {
		return fmt.Errorf("rename blob into place: %w", err)
	}
	if err := os.Chmod(b.path(d), 0o400); err != nil {
		return fmt.Errorf("mark blob read-only: %w", err)
	}
	success = true
	return nil
}

func (b *LocalFile) hasLocked(d core.Digest) (bool, error) {
	_, err := os.Stat(b.path(d))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Has reports whether digest's file exists.
func (b *LocalFile) Has(ctx context.Context, d core.Digest) (bool, error) {
	return b.hasLocked(d)
}

// GetInfo stats digest's file and returns its size.
func (b *LocalFile) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	info, err := os.Stat(b.path(d))
	if os.IsNotExist(err) {
		return core.BlobInfo{}, core.ErrNotFound
	}
	if err != nil {
		return core.BlobInfo{}, err
	}
	return core.BlobInfo{Digest: d, ContentLength: info.Size()}, nil
}

// Delete removes digest's file. Deleting an absent digest is not an error.
func (b *LocalFile) Delete(ctx context.Context, d core.Digest) error {
	err := os.Remove(b.path(d))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Iter lists every digest currently stored.
func (b *LocalFile) Iter(ctx context.Context) ([]core.Digest, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var digests []core.Digest
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.Contains(name, ".tmp-") {
			continue
		}
		digests = append(digests, core.Digest(name))
	}
	return digests, nil
}

// Clear removes every blob under root.
func (b *LocalFile) Clear(ctx context.Context) error {
	digests, err := b.Iter(ctx)
	if err != nil {
		return err
	}
	for _, d := range digests {
		if err := b.Delete(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
