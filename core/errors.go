package core

import "errors"

// Sentinel error kinds. Backends, the cache, the claim table and the HTTP
// API all wrap one of these with fmt.Errorf("%w", ...) so callers
// can branch with errors.Is regardless of which layer raised it.
var (
	// ErrNotFound indicates the requested digest has no claim (or blob, at
	// the backend layer) visible to the caller.
	ErrNotFound = errors.New("cabs: not found")

	// ErrDigestMismatch indicates the bytes written did not hash to the
	// digest the caller asserted.
	ErrDigestMismatch = errors.New("cabs: digest mismatch")

	// ErrIntegrity indicates bytes read back from a backend did not hash to
	// the digest under which they were stored.
	ErrIntegrity = errors.New("cabs: integrity check failed")

	// ErrQuotaExceeded indicates a claim would push a user over their quota.
	ErrQuotaExceeded = errors.New("cabs: quota exceeded")

	// ErrCacheFull indicates the near tier cannot make room for a blob:
	// cache eviction could not reclaim enough space, or the blob exceeds an
	// in-memory backend's per-blob size limit.
	ErrCacheFull = errors.New("cabs: blob too large for cache")

	// ErrConflict indicates a claim upsert whose content length disagrees
	// with the length the existing claim on that digest records.
	ErrConflict = errors.New("cabs: conflicting write")

	// ErrAuth indicates a credential could not be resolved to a user.
	ErrAuth = errors.New("cabs: authentication failed")

	// ErrUnsupported indicates an operation the backend does not implement
	// (e.g. Iter on an object-store backend).
	ErrUnsupported = errors.New("cabs: unsupported operation")

	// ErrClosed indicates an operation was attempted on a closed resource.
	ErrClosed = errors.New("cabs: resource closed")
)
