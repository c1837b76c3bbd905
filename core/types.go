// Package core provides the shared data types for cabs: the value objects
// that flow between the blob backends, the cache, the claim table and the
// HTTP API. Interfaces that define internal contracts live in
// internal/contracts to avoid exposing them as part of the public API.
package core

import "time"

// Digest is a BLAKE3-256 content digest, rendered as lowercase hex.
type Digest string

// String returns the digest's hex representation.
func (d Digest) String() string { return string(d) }

// Empty reports whether the digest is the zero value.
func (d Digest) Empty() bool { return d == "" }

// BlobInfo describes a blob as known to a backend: its digest and length.
// It mirrors blobular's BlobInfo dataclass.
type BlobInfo struct {
	Digest        Digest
	ContentLength int64
}

// User is a principal that can own blob claims.
type User struct {
	ID          string // UUID string
	Username    string
	AvatarURL   string
	Quota       int64 // maximum bytes this user may claim, 0 means unlimited
}

// BlobClaim records that a user has claimed a blob, and is the unit of quota
// accounting. The composite primary key is (Digest, UserID).
type BlobClaim struct {
	Digest        Digest
	UserID        string
	ContentLength int64
	Accesses      int64
	LastAccessed  time.Time
	Created       time.Time
	IsPublic      bool
}

// CacheRow is the persistent bookkeeping record for one digest living in the
// cache tier: how large it is, how recently it was touched, and whether it
// is currently present in the cache and/or already pushed to the backing
// store.
type CacheRow struct {
	Digest        Digest
	ContentLength int64
	Accesses      int64
	LastAccessed  time.Time
	IsCached      bool
	IsStored      bool
}

// UserUsage summarizes a user's current claimed storage against their quota.
type UserUsage struct {
	User  User
	Usage int64
}
