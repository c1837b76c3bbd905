// Package cache implements the near/far cache store described in spec.md
// §4.4: a size-bounded near tier (fast, limited capacity) backed by a far
// tier (the size-tiered store or a remote backend), with two-pass
// large-then-old eviction (LRU or LFU) and explicit push/pull/flush
// synchronization between the tiers. A blob larger than the near tier's
// capacity bypasses it entirely and is written straight to the far tier.
//
// Grounded primarily on the teacher's internal/cache/cache.go (self-healing
// eviction, atomic rename, touch-on-access) and internal/cache/prune.go
// (LRU-by-LastAccessed sorting), generalized from the teacher's one-way
// registry-fallback cache into blobular's store/cache.py CacheBlobStore,
// which is bidirectional (push and pull both ways) and keeps its
// bookkeeping in a row-store table (CacheRow) rather than on-disk JSON
// entries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
)

const rowTable = "cache_rows"

// largeBlobThreshold is the size above which a blob is evicted before any
// smaller blob, mirroring blobular's two-pass evict(): `for L in (2**20, 0)`.
const largeBlobThreshold = 1 << 20

// Policy selects which CacheRow field breaks ties during eviction: LRU
// evicts the least-recently-accessed row first, LFU the least-frequently
// accessed. Both still run the large-then-old two-pass of spec.md §4.4;
// only the sort key within each pass changes.
type Policy int

const (
	// LRU sorts eviction candidates by LastAccessed ascending.
	LRU Policy = iota
	// LFU sorts eviction candidates by Accesses ascending, tie-broken by
	// LastAccessed ascending.
	LFU
)

// Store is the near/far cache store.
type Store struct {
	near    contracts.BlobBackend
	far     contracts.BlobBackend
	rows    contracts.RowStore
	maxSize int64
	policy  Policy
	logger  *slog.Logger
	engine  digest.Engine

	// mu serializes size accounting and eviction so two concurrent Adds
	// don't both decide there's room for a blob that only fits once.
	mu sync.Mutex
}

// New returns a cache Store using the LRU eviction policy. near is the
// fast, size-bounded tier; far is the backing store blobs are eventually
// pushed to and pulled from; rows persists CacheRow bookkeeping; maxSize
// bounds the near tier's total content length.
func New(near, far contracts.BlobBackend, rows contracts.RowStore, maxSize int64, logger *slog.Logger) *Store {
	return NewWithPolicy(near, far, rows, maxSize, LRU, logger)
}

// NewWithPolicy returns a cache Store using the given eviction policy.
func NewWithPolicy(near, far contracts.BlobBackend, rows contracts.RowStore, maxSize int64, policy Policy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{near: near, far: far, rows: rows, maxSize: maxSize, policy: policy, logger: logger, engine: digest.New()}
}

var _ contracts.BlobBackend = (*Store)(nil)

func (s *Store) getRow(ctx context.Context, tx contracts.Tx, d core.Digest) (core.CacheRow, bool, error) {
	var row core.CacheRow
	err := tx.Get(ctx, rowTable, string(d), &row)
	if errors.Is(err, core.ErrNotFound) {
		return core.CacheRow{}, false, nil
	}
	if err != nil {
		return core.CacheRow{}, false, err
	}
	return row, true, nil
}

func (s *Store) putRow(ctx context.Context, tx contracts.Tx, row core.CacheRow) error {
	return tx.Put(ctx, rowTable, string(row.Digest), row)
}

func (s *Store) withTx(ctx context.Context, fn func(tx contracts.Tx) error) error {
	tx, err := s.rows.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// touch records an access against digest's row; an absent row is left absent.
func (s *Store) touch(ctx context.Context, d core.Digest) error {
	return s.withTx(ctx, func(tx contracts.Tx) error {
		row, ok, err := s.getRow(ctx, tx, d)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row.Accesses++
		row.LastAccessed = now()
		return s.putRow(ctx, tx, row)
	})
}

// recalcCacheSize sums ContentLength over every row currently in the near
// tier, mirroring blobular's recalc_cache_size.
func (s *Store) recalcCacheSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx contracts.Tx) error {
		return tx.Scan(ctx, rowTable, func(key string, value []byte) error {
			var row core.CacheRow
			if err := json.Unmarshal(value, &row); err != nil {
				return err
			}
			if row.IsCached {
				total += row.ContentLength
			}
			return nil
		})
	})
	return total, err
}

// Has reports whether digest is presently in the near tier.
func (s *Store) Has(ctx context.Context, d core.Digest) (bool, error) {
	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return false, err
	}
	return ok && row.IsCached, nil
}

func (s *Store) lookupRow(ctx context.Context, d core.Digest) (core.CacheRow, bool, error) {
	var row core.CacheRow
	var ok bool
	err := s.withTx(ctx, func(tx contracts.Tx) error {
		var err error
		row, ok, err = s.getRow(ctx, tx, d)
		return err
	})
	return row, ok, err
}

// GetInfo returns digest's BlobInfo, reading the row from whichever tier
// knows about it.
func (s *Store) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return core.BlobInfo{}, err
	}
	if !ok {
		return core.BlobInfo{}, core.ErrNotFound
	}
	return core.BlobInfo{Digest: d, ContentLength: row.ContentLength}, nil
}

// Open returns digest's content, pulling it from the far tier into the near
// tier first if it isn't already cached. If the near tier reports the blob
// missing despite the row claiming it's cached (corruption, manual
// deletion), Open self-heals: it evicts the stale row and re-pulls from the
// far tier, logging a warning rather than failing the caller.
func (s *Store) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	if err := s.touch(ctx, d); err != nil {
		return nil, err
	}

	// maxSize == 0 disables caching entirely: every blob is served straight
	// from the far tier, mirroring spec.md §4.4's "max_size = 0 disables
	// caching" edge case - nothing is ever pulled into the near tier.
	if s.maxSize == 0 {
		return s.far.Open(ctx, d)
	}

	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return nil, err
	}

	if ok && row.IsCached {
		r, err := s.near.Open(ctx, d)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("cache entry missing from near tier, self-healing", "digest", d)
		if err := s.selfHealEvict(ctx, d); err != nil {
			return nil, err
		}
	}

	// A blob too large for the cache is never pulled into the near tier;
	// serve it straight from the far tier instead, matching Add's bypass
	// for oversized blobs.
	if info, err := s.far.GetInfo(ctx, d); err == nil && info.ContentLength > s.maxSize {
		return s.far.Open(ctx, d)
	}

	if err := s.Pull(ctx, d); err != nil {
		return nil, err
	}
	return s.near.Open(ctx, d)
}

// selfHealEvict clears a row's cached flag without touching the far tier,
// used when the near tier's copy has vanished out from under the row store.
func (s *Store) selfHealEvict(ctx context.Context, d core.Digest) error {
	return s.withTx(ctx, func(tx contracts.Tx) error {
		row, ok, err := s.getRow(ctx, tx, d)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row.IsCached = false
		if !row.IsStored {
			return tx.Delete(ctx, rowTable, string(d))
		}
		return s.putRow(ctx, tx, row)
	})
}

// Pull fetches digest from the far tier into the near tier if it isn't
// already cached, mirroring blobular's CacheBlobStore.pull. A disabled
// cache (maxSize == 0) never admits anything into the near tier, so Pull
// is a no-op in that configuration.
func (s *Store) Pull(ctx context.Context, d core.Digest) error {
	if s.maxSize == 0 {
		return nil
	}

	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return err
	}
	if ok && row.IsCached {
		return nil
	}

	info, err := s.far.GetInfo(ctx, d)
	if err != nil {
		return fmt.Errorf("pull %s: %w", d, err)
	}
	r, err := s.far.Open(ctx, d)
	if err != nil {
		return fmt.Errorf("pull %s: %w", d, err)
	}
	defer r.Close()

	return s.addToCache(ctx, info, r, true)
}

// Push uploads digest from the near tier to the far tier if it isn't
// already stored there, mirroring blobular's CacheBlobStore.push. Unlike
// blobular's _add_to_store, Push re-verifies the digest of the bytes read
// from the near tier as they stream to the far tier, rather than trusting
// the cache file's name: on a mismatch it deletes the far copy it just
// wrote and fails - see DESIGN.md's resolution of the cache _add_to_store
// missing re-verification question.
func (s *Store) Push(ctx context.Context, d core.Digest) error {
	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return err
	}
	if ok && row.IsStored {
		return nil
	}
	if !ok || !row.IsCached {
		return core.ErrNotFound
	}

	r, err := s.near.Open(ctx, d)
	if err != nil {
		return fmt.Errorf("push %s: %w", d, err)
	}
	defer r.Close()

	hasher := s.engine.NewHasher()
	if err := s.far.Add(ctx, d, row.ContentLength, io.TeeReader(r, hasher)); err != nil {
		return fmt.Errorf("push %s: %w", d, err)
	}
	if got := hasher.Digest(); got != d {
		_ = s.far.Delete(ctx, d)
		return fmt.Errorf("%w: near-tier copy of %s actually hashes to %s", core.ErrIntegrity, d, got)
	}

	return s.withTx(ctx, func(tx contracts.Tx) error {
		row, ok, err := s.getRow(ctx, tx, d)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		row.IsStored = true
		return s.putRow(ctx, tx, row)
	})
}

// Flush pushes every cached-but-not-yet-stored row, mirroring blobular's
// CacheBlobStore.flush.
func (s *Store) Flush(ctx context.Context) error {
	var pending []core.Digest
	err := s.withTx(ctx, func(tx contracts.Tx) error {
		return tx.Scan(ctx, rowTable, func(key string, value []byte) error {
			var row core.CacheRow
			if err := json.Unmarshal(value, &row); err != nil {
				return err
			}
			if row.IsCached && !row.IsStored {
				pending = append(pending, row.Digest)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, d := range pending {
		if err := s.Push(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Add stores content under digest, routing it through the cache per
// spec.md §4.4: a blob larger than the cache's capacity bypasses the near
// tier entirely and is written straight to the far tier; everything else
// is admitted into the near tier (evicting as needed) and left for Push or
// Flush to propagate to the far tier. A digest already fully synced
// (is_cached and is_stored) is a no-op, per the spec's terminal-state
// edge case.
func (s *Store) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	row, ok, err := s.lookupRow(ctx, d)
	if err != nil {
		return err
	}
	if ok && row.IsCached && row.IsStored {
		return nil
	}

	// maxSize == 0 disables caching entirely: every blob, regardless of
	// length, goes straight to the far tier (spec.md §4.4's "max_size = 0
	// disables caching" edge case; mirrors blobular's cache.py routing
	// content_length > max_size to _add_to_store, which a zero max_size
	// satisfies for every positive length).
	if s.maxSize == 0 || contentLength > s.maxSize {
		return s.addToStore(ctx, d, contentLength, r)
	}
	return s.addToCache(ctx, core.BlobInfo{Digest: d, ContentLength: contentLength}, r, false)
}

// addToStore writes content straight to the far tier without ever
// populating the near tier, mirroring blobular's handling of blobs too
// large for the cache.
func (s *Store) addToStore(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.far.Add(ctx, d, contentLength, r); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx contracts.Tx) error {
		row, ok, err := s.getRow(ctx, tx, d)
		if err != nil {
			return err
		}
		if !ok {
			row = core.CacheRow{Digest: d}
		}
		row.ContentLength = contentLength
		row.IsStored = true
		row.Accesses++
		row.LastAccessed = now()
		return s.putRow(ctx, tx, row)
	})
}

// addToCache writes content into the near tier, evicting as needed to make
// room, and upserts the row. markStored records that the content is already
// known to exist in the far tier (true when called from Pull).
func (s *Store) addToCache(ctx context.Context, info core.BlobInfo, r io.Reader, markStored bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if has, err := s.near.Has(ctx, info.Digest); err != nil {
		return err
	} else if !has {
		if s.maxSize > 0 {
			current, err := s.recalcCacheSize(ctx)
			if err != nil {
				return err
			}
			spaceNeeded := current + info.ContentLength - s.maxSize
			if spaceNeeded > 0 {
				if err := s.evict(ctx, spaceNeeded); err != nil {
					return err
				}
			}
		}
		if err := s.near.Add(ctx, info.Digest, info.ContentLength, r); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx contracts.Tx) error {
		row, ok, err := s.getRow(ctx, tx, info.Digest)
		if err != nil {
			return err
		}
		if !ok {
			row = core.CacheRow{Digest: info.Digest}
		}
		row.ContentLength = info.ContentLength
		row.IsCached = true
		row.Accesses++
		row.LastAccessed = now()
		if markStored {
			row.IsStored = true
		}
		return s.putRow(ctx, tx, row)
	})
}

// evict frees at least spaceNeeded bytes from the near tier using a
// two-pass large-then-old policy: first consider only rows at least
// largeBlobThreshold bytes, then every remaining cached row. Within each
// pass candidates are sorted oldest-first under LRU or least-accessed-first
// under LFU. This mirrors blobular's CacheBlobStore.evict(space_needed).
// Only rows with IsStored already true are eligible, since evicting a
// cached-only copy would destroy the only surviving replica of that blob.
// If the eligible candidates can't free spaceNeeded, evict frees what it
// can anyway and returns core.ErrCacheFull so the caller's incoming write
// is rejected rather than silently exceeding maxSize forever.
func (s *Store) evict(ctx context.Context, spaceNeeded int64) error {
	var rows []core.CacheRow
	err := s.withTx(ctx, func(tx contracts.Tx) error {
		return tx.Scan(ctx, rowTable, func(key string, value []byte) error {
			var row core.CacheRow
			if err := json.Unmarshal(value, &row); err != nil {
				return err
			}
			if row.IsCached && row.IsStored {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	less := func(candidates []core.CacheRow) func(i, j int) bool {
		switch s.policy {
		case LFU:
			return func(i, j int) bool {
				if candidates[i].Accesses != candidates[j].Accesses {
					return candidates[i].Accesses < candidates[j].Accesses
				}
				return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
			}
		default:
			return func(i, j int) bool {
				return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
			}
		}
	}

	freed := int64(0)
	var toEvict []core.Digest
	evicted := make(map[core.Digest]bool)

	for _, threshold := range []int64{largeBlobThreshold, 0} {
		if freed >= spaceNeeded {
			break
		}
		var candidates []core.CacheRow
		for _, row := range rows {
			if evicted[row.Digest] {
				continue
			}
			if row.ContentLength >= threshold {
				candidates = append(candidates, row)
			}
		}
		sort.Slice(candidates, less(candidates))
		for _, row := range candidates {
			if freed >= spaceNeeded {
				break
			}
			toEvict = append(toEvict, row.Digest)
			evicted[row.Digest] = true
			freed += row.ContentLength
		}
	}

	for _, d := range toEvict {
		if err := s.near.Delete(ctx, d); err != nil {
			return fmt.Errorf("evict %s: %w", d, err)
		}
		if err := s.withTx(ctx, func(tx contracts.Tx) error {
			row, ok, err := s.getRow(ctx, tx, d)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			row.IsCached = false
			if !row.IsStored {
				return tx.Delete(ctx, rowTable, string(d))
			}
			return s.putRow(ctx, tx, row)
		}); err != nil {
			return err
		}
	}

	if freed < spaceNeeded {
		return fmt.Errorf("%w: evicting every eligible entry only freed %d of %d needed bytes", core.ErrCacheFull, freed, spaceNeeded)
	}
	return nil
}

// Delete removes digest from both tiers and its row entirely.
func (s *Store) Delete(ctx context.Context, d core.Digest) error {
	if err := s.near.Delete(ctx, d); err != nil {
		return err
	}
	if err := s.far.Delete(ctx, d); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx contracts.Tx) error {
		return tx.Delete(ctx, rowTable, string(d))
	})
}

// Iter lists every digest known to the cache, whether cached, stored, or
// both.
func (s *Store) Iter(ctx context.Context) ([]core.Digest, error) {
	var digests []core.Digest
	err := s.withTx(ctx, func(tx contracts.Tx) error {
		return tx.Scan(ctx, rowTable, func(key string, value []byte) error {
			digests = append(digests, core.Digest(key))
			return nil
		})
	})
	return digests, err
}

// Clear removes every blob the cache knows about from both tiers.
func (s *Store) Clear(ctx context.Context) error {
	digests, err := s.Iter(ctx)
	if err != nil {
		return err
	}
	for _, d := range digests {
		if err := s.Delete(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }
