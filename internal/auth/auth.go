// Package auth provides the credential-to-user resolver and quota source
// consumed by internal/httpapi and internal/coreapi, grounded on the
// teacher's internal/registry/auth.go StaticCredentials helper (a read-only
// credential store keyed by a single static value) generalized from one
// registry credential to a map of many users.
package auth

import (
	"context"
	"sync"

	"github.com/cabshq/cabs/core"
)

// StaticResolver resolves a fixed, in-memory map of credential string to
// User. Intended for local/dev use and tests; production deployments plug
// in a resolver backed by whatever identity provider issues cabs
// credentials (e.g. GitHub OAuth, as blobular does).
type StaticResolver struct {
	mu    sync.RWMutex
	users map[string]core.User
}

// NewStaticResolver returns a StaticResolver with no credentials registered.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{users: make(map[string]core.User)}
}

// Register associates credential with user, replacing any prior association.
func (r *StaticResolver) Register(credential string, user core.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[credential] = user
}

// ResolveCredential implements contracts.AuthResolver.
func (r *StaticResolver) ResolveCredential(_ context.Context, credential string) (core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[credential]
	if !ok {
		return core.User{}, core.ErrAuth
	}
	return user, nil
}

// StaticQuotaSource overrides per-user quotas from a fixed map, independent
// of whatever quota is recorded on core.User itself. Users absent from the
// map fall back to core.User.Quota (ok=false).
type StaticQuotaSource struct {
	mu     sync.RWMutex
	quotas map[string]int64
}

// NewStaticQuotaSource returns a StaticQuotaSource with no overrides.
func NewStaticQuotaSource() *StaticQuotaSource {
	return &StaticQuotaSource{quotas: make(map[string]int64)}
}

// Set overrides userID's quota.
func (s *StaticQuotaSource) Set(userID string, quota int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID] = quota
}

// UserQuota implements contracts.QuotaSource.
func (s *StaticQuotaSource) UserQuota(_ context.Context, userID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quota, ok := s.quotas[userID]
	return quota, ok, nil
}
