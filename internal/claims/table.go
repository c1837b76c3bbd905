// Package claims implements the per-user blob claim table and quota
// enforcement described in spec.md §4.5, grounded on blobular's
// blobular/registry.py (BlobClaim) and blobular/api/api.py's put_blob/
// get_claim/delete_blob transactional shapes.
package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
)

func unmarshalClaim(data []byte, dest *core.BlobClaim) error { return json.Unmarshal(data, dest) }

const table = "claims"

func key(digest core.Digest, userID string) string {
	return fmt.Sprintf("%s|%s", digest, userID)
}

// Table is the claim table: every operation takes an already-open
// transaction so callers (internal/coreapi) can combine a claim write with
// a quota check, or a claim delete with a claim-count check, atomically.
type Table struct{}

// New returns a claim Table.
func New() Table { return Table{} }

// Get returns the caller's own claim on digest, if any.
func (Table) Get(ctx context.Context, tx contracts.Tx, digest core.Digest, userID string) (core.BlobClaim, bool, error) {
	var claim core.BlobClaim
	err := tx.Get(ctx, table, key(digest, userID), &claim)
	if errors.Is(err, core.ErrNotFound) {
		return core.BlobClaim{}, false, nil
	}
	if err != nil {
		return core.BlobClaim{}, false, err
	}
	return claim, true, nil
}

// Put upserts a claim row.
func (Table) Put(ctx context.Context, tx contracts.Tx, claim core.BlobClaim) error {
	return tx.Put(ctx, table, key(claim.Digest, claim.UserID), claim)
}

// Delete removes the caller's claim on digest. Deleting an absent claim is
// not an error.
func (Table) Delete(ctx context.Context, tx contracts.Tx, digest core.Digest, userID string) error {
	return tx.Delete(ctx, table, key(digest, userID))
}

// Touch increments accesses and refreshes last_accessed on the caller's
// claim, mirroring blobular's touch handler.
func (t Table) Touch(ctx context.Context, tx contracts.Tx, digest core.Digest, userID string) error {
	claim, ok, err := t.Get(ctx, tx, digest, userID)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotFound
	}
	claim.Accesses++
	claim.LastAccessed = time.Now().UTC()
	return t.Put(ctx, tx, claim)
}

// scanAll invokes fn for every claim in the table.
func (Table) scanAll(ctx context.Context, tx contracts.Tx, fn func(core.BlobClaim) error) error {
	return tx.Scan(ctx, table, func(key string, value []byte) error {
		var claim core.BlobClaim
		if err := unmarshalClaim(value, &claim); err != nil {
			return err
		}
		return fn(claim)
	})
}

// VisibleClaim finds the claim on digest visible to requestingUserID: the
// requester's own claim if it exists, otherwise any other user's claim on
// the same digest provided it's marked public. Mirrors blobular's get_claim
// visibility predicate: `digest match AND (user_id match OR is_public)`.
func (t Table) VisibleClaim(ctx context.Context, tx contracts.Tx, digest core.Digest, requestingUserID string) (core.BlobClaim, error) {
	if claim, ok, err := t.Get(ctx, tx, digest, requestingUserID); err != nil {
		return core.BlobClaim{}, err
	} else if ok {
		return claim, nil
	}

	var found *core.BlobClaim
	err := t.scanAll(ctx, tx, func(claim core.BlobClaim) error {
		if found != nil {
			return nil
		}
		if claim.Digest == digest && claim.IsPublic {
			c := claim
			found = &c
		}
		return nil
	})
	if err != nil {
		return core.BlobClaim{}, err
	}
	if found == nil {
		return core.BlobClaim{}, core.ErrNotFound
	}
	return *found, nil
}

// HasAnyClaim reports whether any user still claims digest, used by delete
// to decide whether the underlying blob can be physically removed.
func (t Table) HasAnyClaim(ctx context.Context, tx contracts.Tx, digest core.Digest) (bool, error) {
	found := false
	err := t.scanAll(ctx, tx, func(claim core.BlobClaim) error {
		if claim.Digest == digest {
			found = true
		}
		return nil
	})
	return found, err
}

// UserUsage sums ContentLength across every claim userID holds.
func (t Table) UserUsage(ctx context.Context, tx contracts.Tx, userID string) (int64, error) {
	var total int64
	err := t.scanAll(ctx, tx, func(claim core.BlobClaim) error {
		if claim.UserID == userID {
			total += claim.ContentLength
		}
		return nil
	})
	return total, err
}

// ListForUser returns every claim userID holds.
func (t Table) ListForUser(ctx context.Context, tx contracts.Tx, userID string) ([]core.BlobClaim, error) {
	var claims []core.BlobClaim
	err := t.scanAll(ctx, tx, func(claim core.BlobClaim) error {
		if claim.UserID == userID {
			claims = append(claims, claim)
		}
		return nil
	})
	return claims, err
}
