// Package coreapi implements the transport-agnostic PUT/GET/HEAD/DELETE/LIST
// operations of spec.md §4.5-§4.6, layering a blob backend, the claim table
// and the quota enforcer together. Grounded on blobular's
// blobular/api/api.py (put_blob/get_claim/touch/delete_blob), translated
// from FastAPI request handlers into a plain Go service any transport
// (internal/httpapi, a future gRPC frontend, the CLI talking to an
// in-process server) can call directly.
package coreapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/claims"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
	"github.com/cabshq/cabs/internal/rowstore"
)

// PutResult describes the outcome of a Put, mirroring the JSON body
// blobular's PUT /blob/{digest} handler returns.
type PutResult struct {
	Digest        core.Digest
	ContentLength int64
	IsPublic      bool
	Created       bool
}

// Service wires a blob backend, the claim table, the quota enforcer and a
// row store into the operations spec.md §4.5-§4.6 describe. A Service is
// safe for concurrent use; all mutation happens inside row-store
// transactions opened per call.
type Service struct {
	backend        contracts.BlobBackend
	rows           contracts.RowStore
	engine         contracts.DigestEngine
	claims         claims.Table
	quota          claims.QuotaEnforcer
	logger         *slog.Logger
	spoolThreshold int64
}

// Option configures a Service constructed by New.
type Option func(*Service)

// WithLogger overrides the Service's logger. The default discards all
// output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithSpoolThreshold overrides the number of ingest bytes buffered in memory
// before spilling to a temp file. The default is 16 MiB.
func WithSpoolThreshold(bytes int64) Option {
	return func(s *Service) { s.spoolThreshold = bytes }
}

// WithDigestEngine overrides the digest engine used to hash ingest bodies.
// Primarily for tests that want a non-default engine.
func WithDigestEngine(engine contracts.DigestEngine) Option {
	return func(s *Service) { s.engine = engine }
}

// New returns a Service storing blobs in backend, bookkeeping claims and
// cache rows in rows, and consulting quotaSource for per-user quota
// overrides (quotaSource may be nil).
func New(backend contracts.BlobBackend, rows contracts.RowStore, quotaSource contracts.QuotaSource, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		rows:    rows,
		engine:  digest.New(),
		claims:  claims.New(),
		quota:   claims.NewQuotaEnforcer(quotaSource),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put ingests r as a blob owned by user, following the transactional shape
// of spec.md §4.5: spool the body while hashing it, verify it against
// assertedDigest if the caller supplied one, check quota, write the backend,
// and upsert the claim, all inside a single row-store transaction. An empty
// assertedDigest skips the client-assertion check (the caller didn't know
// the digest up front); the computed digest is always what's stored under.
func (s *Service) Put(ctx context.Context, user core.User, assertedDigest core.Digest, isPublic bool, r io.Reader) (PutResult, error) {
	spool := newSpooledBuffer(s.spoolThreshold)
	defer spool.Close()

	hasher := s.engine.NewHasher()
	n, err := io.Copy(spool, io.TeeReader(r, hasher))
	if err != nil {
		return PutResult{}, fmt.Errorf("spool ingest body: %w", err)
	}
	computed := hasher.Digest()
	if !assertedDigest.Empty() && computed != assertedDigest {
		return PutResult{}, fmt.Errorf("%w: computed %s, asserted %s", core.ErrDigestMismatch, computed, assertedDigest)
	}

	var result PutResult
	err = rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		existing, ok, err := s.claims.Get(ctx, tx, computed, user.ID)
		if err != nil {
			return err
		}
		if ok && existing.ContentLength != n {
			return fmt.Errorf("%w: existing claim on %s records length %d, got %d", core.ErrConflict, computed, existing.ContentLength, n)
		}
		if err := s.quota.Check(ctx, tx, user, n, ok); err != nil {
			return err
		}

		body, err := spool.Reader()
		if err != nil {
			return err
		}
		if err := s.backend.Add(ctx, computed, n, body); err != nil {
			return err
		}

		now := time.Now().UTC()
		claim := core.BlobClaim{
			Digest:        computed,
			UserID:        user.ID,
			ContentLength: n,
			IsPublic:      isPublic,
			LastAccessed:  now,
			Created:       now,
		}
		if ok {
			claim.Accesses = existing.Accesses
			claim.Created = existing.Created
			if existing.IsPublic {
				claim.IsPublic = true
			}
		}
		if err := s.claims.Put(ctx, tx, claim); err != nil {
			return err
		}

		result = PutResult{Digest: computed, ContentLength: n, IsPublic: claim.IsPublic, Created: !ok}
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	return result, nil
}

// Get streams digest's content for user, touching the visible claim's
// access counters first. Returns core.ErrNotFound if no claim on digest is
// visible to user.
func (s *Service) Get(ctx context.Context, user core.User, d core.Digest) (io.ReadCloser, core.BlobClaim, error) {
	claim, err := s.touchVisible(ctx, user, d)
	if err != nil {
		return nil, core.BlobClaim{}, err
	}
	r, err := s.backend.Open(ctx, d)
	if err != nil {
		return nil, core.BlobClaim{}, err
	}
	return r, claim, nil
}

// GetInfo returns the visible claim on digest for user without touching
// access counters or opening the backend, backing both HEAD and
// GET /blob/{digest}/info.
func (s *Service) GetInfo(ctx context.Context, user core.User, d core.Digest) (core.BlobClaim, error) {
	var claim core.BlobClaim
	err := rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		var err error
		claim, err = s.claims.VisibleClaim(ctx, tx, d, user.ID)
		return err
	})
	return claim, err
}

func (s *Service) touchVisible(ctx context.Context, user core.User, d core.Digest) (core.BlobClaim, error) {
	var claim core.BlobClaim
	err := rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		var err error
		claim, err = s.claims.VisibleClaim(ctx, tx, d, user.ID)
		if err != nil {
			return err
		}
		if err := s.claims.Touch(ctx, tx, d, claim.UserID); err != nil {
			return err
		}
		claim, _, err = s.claims.Get(ctx, tx, d, claim.UserID)
		return err
	})
	return claim, err
}

// Delete removes user's claim on digest, following the transactional shape
// of spec.md §4.5: the claim row is deleted first, and the backend blob is
// only deleted if no claim on that digest survives in the same
// transaction's view of the claim table, resolving the delete/add race by
// construction rather than locking.
func (s *Service) Delete(ctx context.Context, user core.User, d core.Digest) error {
	return rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		if _, ok, err := s.claims.Get(ctx, tx, d, user.ID); err != nil {
			return err
		} else if !ok {
			return core.ErrNotFound
		}
		if err := s.claims.Delete(ctx, tx, d, user.ID); err != nil {
			return err
		}
		has, err := s.claims.HasAnyClaim(ctx, tx, d)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		if err := s.backend.Delete(ctx, d); err != nil {
			return fmt.Errorf("delete orphaned blob %s: %w", d, err)
		}
		return nil
	})
}

// List returns every claim user holds, backing GET /blob.
func (s *Service) List(ctx context.Context, user core.User) ([]core.BlobClaim, error) {
	var list []core.BlobClaim
	err := rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		var err error
		list, err = s.claims.ListForUser(ctx, tx, user.ID)
		return err
	})
	return list, err
}

// Usage returns user's current claimed storage, backing GET /user.
func (s *Service) Usage(ctx context.Context, user core.User) (core.UserUsage, error) {
	var total int64
	err := rowstore.WithTx(ctx, s.rows, func(tx contracts.Tx) error {
		var err error
		total, err = s.claims.UserUsage(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return core.UserUsage{}, err
	}
	return core.UserUsage{User: user, Usage: total}, nil
}
