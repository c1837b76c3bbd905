package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/auth"
)

func TestStaticResolverResolvesRegisteredCredential(t *testing.T) {
	t.Parallel()

	r := auth.NewStaticResolver()
	r.Register("token-1", core.User{ID: "u1", Username: "alice"})

	user, err := r.ResolveCredential(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestStaticResolverRejectsUnknownCredential(t *testing.T) {
	t.Parallel()

	r := auth.NewStaticResolver()
	_, err := r.ResolveCredential(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestStaticQuotaSourceFallsBackWhenUnset(t *testing.T) {
	t.Parallel()

	s := auth.NewStaticQuotaSource()
	_, ok, err := s.UserQuota(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticQuotaSourceReturnsOverride(t *testing.T) {
	t.Parallel()

	s := auth.NewStaticQuotaSource()
	s.Set("u1", 1<<30)

	quota, ok, err := s.UserQuota(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1<<30), quota)
}
