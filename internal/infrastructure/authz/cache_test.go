package authz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/infrastructure/authz"
)

func TestCachedFactory_MemoisesDecisions(t *testing.T) {
	fetcher := &fakeFetcher{profiles: map[string]map[string][]string{
		"user:alice": {"view": {"flow:n1"}},
	}}
	cached, err := authz.NewCachedFactory(context.Background(), authz.NewRemoteFactory(fetcher), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })

	assert.True(t, can(t, cached, "user:alice", permission.ActionView, "flow", "n1"))
	assert.False(t, can(t, cached, "user:alice", permission.ActionDelete, "flow", "n1"))
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, 2, cached.Len())

	// served from cache, the profile is not fetched again
	assert.True(t, can(t, cached, "user:alice", permission.ActionView, "flow", "n1"))
	assert.False(t, can(t, cached, "user:alice", permission.ActionDelete, "flow", "n1"))
	assert.Equal(t, 2, fetcher.calls)

	require.NoError(t, cached.Reset())
	assert.Equal(t, 0, cached.Len())
	assert.True(t, can(t, cached, "user:alice", permission.ActionView, "flow", "n1"))
	assert.Equal(t, 3, fetcher.calls)
}

func TestCachedFactory_ErrorsAreNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("unavailable")}
	cached, err := authz.NewCachedFactory(context.Background(), authz.NewRemoteFactory(fetcher), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })

	a, err := cached.NewAuthorizer(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.SetUser(context.Background(), "user:alice"))

	_, err = a.Can(context.Background(), permission.ActionView, "flow", "n1")
	require.Error(t, err)
	assert.Equal(t, 0, cached.Len())

	fetcher.err = nil
	fetcher.profiles = map[string]map[string][]string{"user:alice": {"view": {"flow:n1"}}}
	ok, err := a.Can(context.Background(), permission.ActionView, "flow", "n1")
	require.NoError(t, err)
	assert.True(t, ok)
}
