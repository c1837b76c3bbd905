// Package sizetiered routes blobs between a small and a big backend based
// on content length, grounded on blobular's SizedBlobStore.
package sizetiered

import (
	"context"
	"errors"
	"io"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
)

// Store routes Add by content length: blobs no larger than Threshold go to
// Small, everything else goes to Big. Has/GetInfo/Open try Small first and
// fall back to Big, since a caller may not know which tier holds a digest.
type Store struct {
	Small     contracts.BlobBackend
	Big       contracts.BlobBackend
	Threshold int64
}

var _ contracts.BlobBackend = (*Store)(nil)

// New returns a size-tiered store routing blobs <= threshold to small and
// everything else to big.
func New(small, big contracts.BlobBackend, threshold int64) *Store {
	return &Store{Small: small, Big: big, Threshold: threshold}
}

func (s *Store) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	r, err := s.Small.Open(ctx, d)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return s.Big.Open(ctx, d)
}

func (s *Store) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	if contentLength <= s.Threshold {
		return s.Small.Add(ctx, d, contentLength, r)
	}
	return s.Big.Add(ctx, d, contentLength, r)
}

func (s *Store) Has(ctx context.Context, d core.Digest) (bool, error) {
	has, err := s.Small.Has(ctx, d)
	if err != nil {
		return false, err
	}
	if has {
		return true, nil
	}
	return s.Big.Has(ctx, d)
}

func (s *Store) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	info, err := s.Small.GetInfo(ctx, d)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.BlobInfo{}, err
	}
	return s.Big.GetInfo(ctx, d)
}

// Delete removes digest from whichever tier holds it. Deleting from both is
// safe since Delete on an absent digest is a no-op.
func (s *Store) Delete(ctx context.Context, d core.Digest) error {
	if err := s.Small.Delete(ctx, d); err != nil {
		return err
	}
	return s.Big.Delete(ctx, d)
}

// Iter concatenates both tiers' digests.
func (s *Store) Iter(ctx context.Context) ([]core.Digest, error) {
	small, err := s.Small.Iter(ctx)
	if err != nil {
		return nil, err
	}
	big, err := s.Big.Iter(ctx)
	if err != nil {
		return nil, err
	}
	return append(small, big...), nil
}

// Clear clears both tiers.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.Small.Clear(ctx); err != nil {
		return err
	}
	return s.Big.Clear(ctx)
}
