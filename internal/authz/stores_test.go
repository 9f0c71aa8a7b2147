package authz

import (
	"errors"
	"testing"
	"time"
)

func TestGroupAddValidation(t *testing.T) {
	store := NewGroupStore()
	if _, err := store.Add(UserGroup{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	group, err := store.Add(UserGroup{Name: "ops", Members: []string{"u1", "u1", "u2"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if group.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if len(group.Members) != 2 {
		t.Fatalf("expected duplicate members collapsed, got %v", group.Members)
	}
}

func TestGroupMembershipIdempotent(t *testing.T) {
	store := NewGroupStore()
	group, err := store.Add(UserGroup{Name: "ops"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	store.AddMember(group.ID, "u1")
	store.AddMember(group.ID, "u1")
	got, ok := store.Get(group.ID)
	if !ok {
		t.Fatalf("group missing")
	}
	if len(got.Members) != 1 || got.Members[0] != "u1" {
		t.Fatalf("expected exactly one member, got %v", got.Members)
	}
}

func TestGroupUpdateMissingIsSignal(t *testing.T) {
	store := NewGroupStore()
	if _, ok := store.Update("nope", GroupPatch{}); ok {
		t.Fatalf("expected not-found signal")
	}
	if store.Remove("nope") {
		t.Fatalf("expected remove no-op")
	}
	if store.RemoveMember("nope", "u1") {
		t.Fatalf("expected remove member no-op")
	}
}

func TestGroupUpdatePatchesInPlace(t *testing.T) {
	store := NewGroupStore()
	group, err := store.Add(UserGroup{Name: "ops", Roles: []string{"viewer"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	name := "operations"
	updated, ok := store.Update(group.ID, GroupPatch{Name: &name, Roles: []string{"viewer", "editor"}})
	if !ok {
		t.Fatalf("expected found")
	}
	if updated.Name != "operations" || len(updated.Roles) != 2 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	// Nil roles leaves the role list alone.
	updated, _ = store.Update(group.ID, GroupPatch{})
	if len(updated.Roles) != 2 {
		t.Fatalf("expected roles untouched, got %v", updated.Roles)
	}
}

func TestGroupRolesForUnion(t *testing.T) {
	store := NewGroupStore()
	a, _ := store.Add(UserGroup{Name: "a", Roles: []string{"viewer", "editor"}, Members: []string{"u1"}})
	b, _ := store.Add(UserGroup{Name: "b", Roles: []string{"editor", "admin"}, Members: []string{"u1"}})
	roles := store.RolesFor("u1")
	if len(roles) != 3 {
		t.Fatalf("expected union of 3 roles, got %v", roles)
	}
	store.Remove(a.ID)
	store.Remove(b.ID)
	if got := store.RolesFor("u1"); len(got) != 0 {
		t.Fatalf("expected no roles after group removal, got %v", got)
	}
}

func TestDelegationAddValidation(t *testing.T) {
	store := NewDelegationStore()
	cases := []Delegation{
		{ToUserID: "b", Actions: []string{"x"}},
		{FromUserID: "a", Actions: []string{"x"}},
		{FromUserID: "a", ToUserID: "b"},
		{FromUserID: "a", ToUserID: "b", Actions: []string{"  "}},
	}
	for i, d := range cases {
		if _, err := store.Add(d); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if got := store.List(DelegationFilter{}); len(got) != 0 {
		t.Fatalf("rejected writes must not mutate state, got %v", got)
	}
}

func TestDelegationRemoveByPairAndResource(t *testing.T) {
	store := NewDelegationStore()
	mustAddDelegation(t, store, Delegation{FromUserID: "a", ToUserID: "b", Actions: []string{"x"}})
	mustAddDelegation(t, store, Delegation{FromUserID: "a", ToUserID: "b", Actions: []string{"y"}, Resource: "r1"})
	mustAddDelegation(t, store, Delegation{FromUserID: "a", ToUserID: "c", Actions: []string{"x"}})

	scoped := "r1"
	if n := store.Remove("a", "b", &scoped); n != 1 {
		t.Fatalf("expected 1 scoped removal, got %d", n)
	}
	if n := store.Remove("a", "b", nil); n != 1 {
		t.Fatalf("expected 1 pair removal, got %d", n)
	}
	// Removing a non-existent delegation is a no-op, not an error.
	if n := store.Remove("a", "b", nil); n != 0 {
		t.Fatalf("expected no-op, got %d", n)
	}
	if got := store.List(DelegationFilter{ToUserID: "c"}); len(got) != 1 {
		t.Fatalf("unrelated delegation must survive, got %v", got)
	}
}

func TestDelegationListKeepsExpiredRows(t *testing.T) {
	store := NewDelegationStore()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	mustAddDelegation(t, store, Delegation{
		FromUserID: "a", ToUserID: "b", Actions: []string{"x"},
		ExpiresAt: now.Add(-time.Hour),
	})
	if got := store.List(DelegationFilter{ToUserID: "b"}); len(got) != 1 {
		t.Fatalf("expired rows stay listed until purged, got %v", got)
	}
	if n := store.PurgeExpired(now); n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if got := store.List(DelegationFilter{ToUserID: "b"}); len(got) != 0 {
		t.Fatalf("expected empty after purge, got %v", got)
	}
}

func TestACLLastWriteWins(t *testing.T) {
	store := NewACLStore()
	if _, err := store.Set(ACLEntry{UserID: "carol", Resource: "doc-7", Actions: []string{"read", "write"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Set(ACLEntry{UserID: "carol", Resource: "doc-7", Actions: []string{"read"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, ok := store.Get("carol", "doc-7")
	if !ok {
		t.Fatalf("entry missing")
	}
	if len(entry.Actions) != 1 || entry.Actions[0] != "read" {
		t.Fatalf("expected full replacement, got %v", entry.Actions)
	}
}

func TestACLSetValidation(t *testing.T) {
	store := NewACLStore()
	cases := []ACLEntry{
		{Resource: "r", Actions: []string{"read"}},
		{UserID: "u", Actions: []string{"read"}},
		{UserID: "u", Resource: "r"},
	}
	for i, e := range cases {
		if _, err := store.Set(e); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestACLRemoveAndFilter(t *testing.T) {
	store := NewACLStore()
	_, _ = store.Set(ACLEntry{UserID: "u1", Resource: "r1", Actions: []string{"read"}})
	_, _ = store.Set(ACLEntry{UserID: "u1", Resource: "r2", Actions: []string{"read"}})
	_, _ = store.Set(ACLEntry{UserID: "u2", Resource: "r1", Actions: []string{"write"}})

	if got := store.List(ACLFilter{UserID: "u1"}); len(got) != 2 {
		t.Fatalf("expected 2 entries for u1, got %d", len(got))
	}
	if got := store.List(ACLFilter{Resource: "r1"}); len(got) != 2 {
		t.Fatalf("expected 2 entries for r1, got %d", len(got))
	}
	if !store.Remove("u1", "r1") {
		t.Fatalf("expected removal")
	}
	if store.Remove("u1", "r1") {
		t.Fatalf("expected no-op on second removal")
	}
}

func mustAddDelegation(t *testing.T, store *DelegationStore, d Delegation) Delegation {
	t.Helper()
	added, err := store.Add(d)
	if err != nil {
		t.Fatalf("add delegation: %v", err)
	}
	return added
}
