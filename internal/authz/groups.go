package authz

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GroupPatch carries the mutable fields of a group update. Nil fields
// are left unchanged.
type GroupPatch struct {
	Name  *string
	Roles []string
}

type groupRecord struct {
	id      string
	name    string
	members map[string]struct{}
	roles   []string
}

// GroupStore owns UserGroup records. All operations are atomic with
// respect to each other; reads share the lock.
type GroupStore struct {
	mu       sync.RWMutex
	groups   map[string]*groupRecord
	byMember map[string]map[string]struct{} // userID -> group IDs
}

// NewGroupStore constructs an empty store.
func NewGroupStore() *GroupStore {
	return &GroupStore{
		groups:   make(map[string]*groupRecord),
		byMember: make(map[string]map[string]struct{}),
	}
}

// Add validates and inserts a group. A missing ID is assigned;
// duplicate members in the payload collapse to one.
func (s *GroupStore) Add(g UserGroup) (UserGroup, error) {
	if g.Name == "" {
		return UserGroup{}, fmt.Errorf("%w: group name required", ErrValidation)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	rec := &groupRecord{
		id:      g.ID,
		name:    g.Name,
		members: make(map[string]struct{}, len(g.Members)),
		roles:   normalizeAll(g.Roles),
	}
	for _, m := range g.Members {
		if m != "" {
			rec.members[m] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[rec.id]; exists {
		return UserGroup{}, fmt.Errorf("%w: group %q already exists", ErrValidation, rec.id)
	}
	s.groups[rec.id] = rec
	for m := range rec.members {
		s.indexMember(m, rec.id)
	}
	return rec.snapshot(), nil
}

// Update applies a partial update. The second return is false when the
// group does not exist; that is a signal, not an error.
func (s *GroupStore) Update(id string, patch GroupPatch) (UserGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[id]
	if !ok {
		return UserGroup{}, false
	}
	if patch.Name != nil && *patch.Name != "" {
		rec.name = *patch.Name
	}
	if patch.Roles != nil {
		rec.roles = normalizeAll(patch.Roles)
	}
	return rec.snapshot(), true
}

// Remove deletes a group. Removing an absent id is a no-op returning
// false. Deletion does not cascade to delegations or ACL entries that
// reference former members.
func (s *GroupStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[id]
	if !ok {
		return false
	}
	for m := range rec.members {
		s.unindexMember(m, id)
	}
	delete(s.groups, id)
	return true
}

// Get returns a copy of one group.
func (s *GroupStore) Get(id string) (UserGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.groups[id]
	if !ok {
		return UserGroup{}, false
	}
	return rec.snapshot(), true
}

// List returns copies of every group.
func (s *GroupStore) List() []UserGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserGroup, 0, len(s.groups))
	for _, rec := range s.groups {
		out = append(out, rec.snapshot())
	}
	return out
}

// AddMember adds a user to a group. Adding an existing member is a
// no-op, so a member never appears twice. Returns false when the group
// does not exist.
func (s *GroupStore) AddMember(groupID, userID string) bool {
	if userID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[groupID]
	if !ok {
		return false
	}
	if _, present := rec.members[userID]; !present {
		rec.members[userID] = struct{}{}
		s.indexMember(userID, groupID)
	}
	return true
}

// RemoveMember removes a user from a group; absent members are a no-op.
// Takes effect on the next evaluation with no grace period.
func (s *GroupStore) RemoveMember(groupID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.groups[groupID]
	if !ok {
		return false
	}
	if _, present := rec.members[userID]; present {
		delete(rec.members, userID)
		s.unindexMember(userID, groupID)
	}
	return true
}

// RolesFor returns the union of role names across every group the user
// currently belongs to. This is the evaluator's hot path and goes
// through the member index rather than a scan.
func (s *GroupStore) RolesFor(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groupIDs, ok := s.byMember[userID]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var roles []string
	for gid := range groupIDs {
		rec, ok := s.groups[gid]
		if !ok {
			continue
		}
		for _, role := range rec.roles {
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	return roles
}

// Replace swaps the entire store contents. Used when hydrating from a
// persistence snapshot at boot.
func (s *GroupStore) Replace(groups []UserGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[string]*groupRecord, len(groups))
	s.byMember = make(map[string]map[string]struct{})
	for _, g := range groups {
		if g.ID == "" || g.Name == "" {
			continue
		}
		rec := &groupRecord{
			id:      g.ID,
			name:    g.Name,
			members: make(map[string]struct{}, len(g.Members)),
			roles:   normalizeAll(g.Roles),
		}
		for _, m := range g.Members {
			if m != "" {
				rec.members[m] = struct{}{}
				s.indexMember(m, g.ID)
			}
		}
		s.groups[g.ID] = rec
	}
}

func (s *GroupStore) indexMember(userID, groupID string) {
	set, ok := s.byMember[userID]
	if !ok {
		set = make(map[string]struct{})
		s.byMember[userID] = set
	}
	set[groupID] = struct{}{}
}

func (s *GroupStore) unindexMember(userID, groupID string) {
	set, ok := s.byMember[userID]
	if !ok {
		return
	}
	delete(set, groupID)
	if len(set) == 0 {
		delete(s.byMember, userID)
	}
}

func (r *groupRecord) snapshot() UserGroup {
	members := make([]string, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	roles := make([]string, len(r.roles))
	copy(roles, r.roles)
	return UserGroup{ID: r.id, Name: r.name, Members: members, Roles: roles}
}
