// Package contracts defines internal interfaces shared across cabs
// components. These interfaces are intentionally internal to avoid exposing
// implementation contracts as part of the public API.
package contracts

import (
	"context"
	"io"

	"github.com/cabshq/cabs/core"
)

// BlobBackend is the uniform contract every blob storage implementation
// satisfies: local file, in-database, in-memory, object store and remote
// HTTP. A size-tiered or cached store composes two BlobBackends.
type BlobBackend interface {
	// Open returns a reader for the blob. Returns core.ErrNotFound if absent.
	Open(ctx context.Context, digest core.Digest) (io.ReadCloser, error)

	// Add stores content under digest, which the caller always supplies;
	// content that does not hash to it fails with core.ErrDigestMismatch
	// (the Remote backend leaves that check to the server). Implementations MUST
	// be safe for at most one concurrent Add per digest to actually write;
	// concurrent calls for the same digest may be coalesced or serialized.
	Add(ctx context.Context, digest core.Digest, contentLength int64, r io.Reader) error

	// Has reports whether the backend currently stores digest.
	Has(ctx context.Context, digest core.Digest) (bool, error)

	// GetInfo returns the stored BlobInfo for digest.
	GetInfo(ctx context.Context, digest core.Digest) (core.BlobInfo, error)

	// Delete removes digest. Deleting an absent digest is not an error.
	Delete(ctx context.Context, digest core.Digest) error

	// Iter lists every digest currently stored. Backends that cannot
	// enumerate efficiently (e.g. object stores) return core.ErrUnsupported.
	Iter(ctx context.Context) ([]core.Digest, error)

	// Clear removes every blob the backend holds. Primarily for tests.
	Clear(ctx context.Context) error
}

// DigestEngine computes content digests while streaming.
type DigestEngine interface {
	// Sum streams r to completion and returns its digest and length.
	Sum(r io.Reader) (core.Digest, int64, error)

	// NewHasher returns a hash.Hash-like incremental digest writer, used when
	// the engine needs to be driven by a TeeReader instead of owning the read
	// loop (e.g. while simultaneously writing to a destination file).
	NewHasher() HashWriter
}

// HashWriter is an incremental digest accumulator.
type HashWriter interface {
	io.Writer
	// Digest returns the digest of everything written so far.
	Digest() core.Digest
}

// Tx is a single row-store transaction. All reads and writes performed
// through a Tx are isolated from other transactions until Commit.
type Tx interface {
	// Get reads a row by table and key. Returns core.ErrNotFound if absent.
	Get(ctx context.Context, table, key string, dest any) error

	// Put inserts or replaces a row.
	Put(ctx context.Context, table, key string, value any) error

	// Delete removes a row. Deleting an absent row is not an error.
	Delete(ctx context.Context, table, key string) error

	// Scan invokes fn for every row in table, in unspecified order. Scan
	// stops and returns fn's error if fn returns a non-nil error.
	Scan(ctx context.Context, table string, fn func(key string, value []byte) error) error

	// Commit finalizes the transaction's writes.
	Commit() error

	// Rollback discards the transaction's writes. Calling Rollback after a
	// successful Commit is a no-op, matching database/sql's *Tx semantics so
	// callers can unconditionally `defer tx.Rollback()`.
	Rollback() error
}

// RowStore is a small transactional key/value row interface, deliberately
// not a generic typed-table query layer: callers marshal their own row
// types and choose their own table names and keys.
type RowStore interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context) (Tx, error)

	// Close releases any resources (file handles, connection pools) held by
	// the store.
	Close() error
}

// AuthResolver maps an opaque credential to a user. HTTP-facing callers pass
// whatever they extracted from the request (e.g. a bearer token); the
// resolver is free to interpret it however it authenticates users.
type AuthResolver interface {
	ResolveCredential(ctx context.Context, credential string) (core.User, error)
}

// QuotaSource optionally overrides a user's quota beyond what's stored on
// core.User (e.g. to look it up from a billing system). Adapters that have
// no such notion can return the zero value and ok=false to fall back to
// core.User.Quota.
type QuotaSource interface {
	UserQuota(ctx context.Context, userID string) (quota int64, ok bool, err error)
}
