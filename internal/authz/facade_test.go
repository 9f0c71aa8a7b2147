package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySnapshot struct {
	snap     Snapshot
	loadErr  error
	saveErr  error
	saves    int
	lastSave string
}

func (m *memorySnapshot) SaveGroups(_ context.Context, groups []UserGroup) error {
	m.saves++
	m.lastSave = "groups"
	m.snap.Groups = groups
	return m.saveErr
}

func (m *memorySnapshot) SaveDelegations(_ context.Context, delegations []Delegation) error {
	m.saves++
	m.lastSave = "delegations"
	m.snap.Delegations = delegations
	return m.saveErr
}

func (m *memorySnapshot) SaveACLs(_ context.Context, entries []ACLEntry) error {
	m.saves++
	m.lastSave = "acls"
	m.snap.ACLs = entries
	return m.saveErr
}

func (m *memorySnapshot) Load(context.Context) (Snapshot, error) {
	return m.snap, m.loadErr
}

type mutationSink struct {
	ops []string
}

func (s *mutationSink) RecordMutation(_ context.Context, op, entity, _ string, _ map[string]any) {
	s.ops = append(s.ops, entity+":"+op)
}

func TestFacadeEndToEnd(t *testing.T) {
	sink := &mutationSink{}
	ac := New(Config{
		Roles:     testRoles(),
		Mutations: sink,
		Clock:     func() time.Time { return testNow },
	})
	ctx := context.Background()

	group, err := ac.AddGroup(ctx, UserGroup{Name: "finance", Roles: []string{"accountant"}})
	require.NoError(t, err)
	require.NoError(t, ac.AddUserToGroup(ctx, group.ID, "ursula"))

	assert.True(t, ac.Can(ctx, User{ID: "ursula"}, "view_ledger", "doc-1", Context{}))

	require.NoError(t, ac.RemoveUserFromGroup(ctx, group.ID, "ursula"))
	assert.False(t, ac.Can(ctx, User{ID: "ursula"}, "view_ledger", "doc-1", Context{}))

	_, err = ac.AddDelegation(ctx, Delegation{FromUserID: "bob", ToUserID: "ursula", Actions: []string{"view_ledger"}})
	require.NoError(t, err)
	assert.True(t, ac.Can(ctx, User{ID: "ursula"}, "view_ledger", "doc-1", Context{}))

	assert.Equal(t, []string{"group:add", "group:add_member", "group:remove_member", "delegation:add"}, sink.ops)
}

func TestFacadeNotFoundSignals(t *testing.T) {
	ac := New(Config{})
	ctx := context.Background()

	_, err := ac.UpdateGroup(ctx, "missing", GroupPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ac.RemoveGroup(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, ac.AddUserToGroup(ctx, "missing", "u"), ErrNotFound)
	assert.ErrorIs(t, ac.RemoveUserFromGroup(ctx, "missing", "u"), ErrNotFound)
	assert.False(t, ac.RemoveACL(ctx, "u", "r"))
	assert.Zero(t, ac.RemoveDelegation(ctx, "a", "b", nil))
}

func TestFacadeValidationRejectsBeforeMutation(t *testing.T) {
	ac := New(Config{})
	ctx := context.Background()

	_, err := ac.AddDelegation(ctx, Delegation{ToUserID: "b"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ac.SetACL(ctx, ACLEntry{UserID: "u"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ac.AddGroup(ctx, UserGroup{})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, ac.ListDelegations(DelegationFilter{}))
	assert.Empty(t, ac.ListACLs(ACLFilter{}))
	assert.Empty(t, ac.ListGroups())
}

func TestFacadeSnapshotRoundTrip(t *testing.T) {
	store := &memorySnapshot{}
	ac := New(Config{Snapshot: store, Clock: func() time.Time { return testNow }})
	ctx := context.Background()

	_, err := ac.AddDelegation(ctx, Delegation{FromUserID: "a", ToUserID: "b", Actions: []string{"x"}})
	require.NoError(t, err)
	_, err = ac.SetACL(ctx, ACLEntry{UserID: "u", Resource: "r", Actions: []string{"read"}})
	require.NoError(t, err)
	_, err = ac.AddGroup(ctx, UserGroup{Name: "ops", Members: []string{"u"}})
	require.NoError(t, err)
	require.Equal(t, 3, store.saves)

	// A second facade hydrated from the same snapshot store serves the
	// same decisions.
	restored := New(Config{Snapshot: store, Clock: func() time.Time { return testNow }})
	require.NoError(t, restored.Hydrate(ctx))
	assert.Len(t, restored.ListDelegations(DelegationFilter{}), 1)
	assert.Len(t, restored.ListACLs(ACLFilter{}), 1)
	assert.Len(t, restored.ListGroups(), 1)
	assert.True(t, restored.Can(ctx, User{ID: "u"}, "read", "r", Context{}))
}

func TestFacadeSnapshotSaveErrorDoesNotFailMutation(t *testing.T) {
	store := &memorySnapshot{saveErr: errors.New("redis down")}
	ac := New(Config{Snapshot: store})

	added, err := ac.AddDelegation(context.Background(), Delegation{FromUserID: "a", ToUserID: "b", Actions: []string{"x"}})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Len(t, ac.ListDelegations(DelegationFilter{}), 1)
}

func TestFacadeHydrateErrorSurfaces(t *testing.T) {
	store := &memorySnapshot{loadErr: errors.New("redis down")}
	ac := New(Config{Snapshot: store})
	assert.Error(t, ac.Hydrate(context.Background()))
}

func TestFacadePurgeExpired(t *testing.T) {
	store := &memorySnapshot{}
	now := testNow
	ac := New(Config{Snapshot: store, Clock: func() time.Time { return now }})
	ctx := context.Background()

	_, err := ac.AddDelegation(ctx, Delegation{
		FromUserID: "a", ToUserID: "b", Actions: []string{"x"},
		ExpiresAt: testNow.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	_, err = ac.SetACL(ctx, ACLEntry{
		UserID: "u", Resource: "r", Actions: []string{"read"},
		ExpiresAt: testNow.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	require.Zero(t, ac.PurgeExpired(ctx))

	now = testNow.Add(time.Hour)
	// Lazy expiry already denies before the sweep runs.
	assert.False(t, ac.Can(ctx, User{ID: "b"}, "x", "r", Context{}))
	assert.Equal(t, 2, ac.PurgeExpired(ctx))
	assert.Empty(t, ac.ListDelegations(DelegationFilter{}))
	assert.Empty(t, ac.ListACLs(ACLFilter{}))
	assert.Empty(t, store.snap.Delegations)
	assert.Empty(t, store.snap.ACLs)
}

type countingMetrics struct {
	allowed map[GrantPath]int
	denied  int
}

func (m *countingMetrics) ObserveDecision(path GrantPath, allowed bool) {
	if !allowed {
		m.denied++
		return
	}
	if m.allowed == nil {
		m.allowed = make(map[GrantPath]int)
	}
	m.allowed[path]++
}

func TestFacadeObservesDecisions(t *testing.T) {
	metrics := &countingMetrics{}
	ac := New(Config{Roles: testRoles(), Metrics: metrics})
	ctx := context.Background()

	ac.Can(ctx, User{ID: "alice", Roles: []string{"accountant"}}, "view_ledger", "x", Context{})
	ac.Can(ctx, User{ID: "alice"}, "view_ledger", "x", Context{})

	assert.Equal(t, 1, metrics.allowed[PathRole])
	assert.Equal(t, 1, metrics.denied)
}
