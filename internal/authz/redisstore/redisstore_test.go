package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/authz"
	"github.com/meridian-erp/meridian/internal/authz/redisstore"
)

func newStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestLoadEmpty(t *testing.T) {
	store := newStore(t)
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Groups)
	assert.Empty(t, snap.Delegations)
	assert.Empty(t, snap.ACLs)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	expires := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	groups := []authz.UserGroup{{ID: "g1", Name: "finance", Members: []string{"u1"}, Roles: []string{"accountant"}}}
	delegations := []authz.Delegation{{ID: "d1", FromUserID: "a", ToUserID: "b", Actions: []string{"x"}, ExpiresAt: expires}}
	acls := []authz.ACLEntry{{UserID: "u1", Resource: "r1", Actions: []string{"read"}}}

	require.NoError(t, store.SaveGroups(ctx, groups))
	require.NoError(t, store.SaveDelegations(ctx, delegations))
	require.NoError(t, store.SaveACLs(ctx, acls))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, groups, snap.Groups)
	assert.Equal(t, acls, snap.ACLs)
	require.Len(t, snap.Delegations, 1)
	assert.Equal(t, "d1", snap.Delegations[0].ID)
	assert.True(t, snap.Delegations[0].ExpiresAt.Equal(expires))
}

func TestSaveReplacesPriorSnapshot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveACLs(ctx, []authz.ACLEntry{
		{UserID: "u1", Resource: "r1", Actions: []string{"read"}},
		{UserID: "u2", Resource: "r2", Actions: []string{"write"}},
	}))
	require.NoError(t, store.SaveACLs(ctx, []authz.ACLEntry{
		{UserID: "u1", Resource: "r1", Actions: []string{"read"}},
	}))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.ACLs, 1)
}

func TestHydrateFacadeFromRedis(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	seed := authz.New(authz.Config{Snapshot: store})
	_, err := seed.AddDelegation(ctx, authz.Delegation{FromUserID: "bob", ToUserID: "alice", Actions: []string{"approve_invoice"}})
	require.NoError(t, err)

	restored := authz.New(authz.Config{Snapshot: store})
	require.NoError(t, restored.Hydrate(ctx))
	assert.True(t, restored.Can(ctx, authz.User{ID: "alice"}, "approve_invoice", "inv-1", authz.Context{}))
}
