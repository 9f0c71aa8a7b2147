package authz

import (
	"fmt"
	"sync"
	"time"
)

// ACLFilter narrows List output by its populated fields.
type ACLFilter struct {
	UserID   string
	Resource string
}

// ACLStore owns ACLEntry records keyed by (user, resource). Writes are
// last-write-wins: a Set fully replaces the prior entry for its key,
// action sets are never merged.
type ACLStore struct {
	mu      sync.RWMutex
	entries map[aclKey]ACLEntry
}

type aclKey struct {
	userID   string
	resource string
}

// NewACLStore constructs an empty store.
func NewACLStore() *ACLStore {
	return &ACLStore{entries: make(map[aclKey]ACLEntry)}
}

// Set validates and upserts an entry.
func (s *ACLStore) Set(e ACLEntry) (ACLEntry, error) {
	if e.UserID == "" {
		return ACLEntry{}, fmt.Errorf("%w: acl user_id required", ErrValidation)
	}
	if e.Resource == "" {
		return ACLEntry{}, fmt.Errorf("%w: acl resource required", ErrValidation)
	}
	e.Actions = normalizeAll(e.Actions)
	if len(e.Actions) == 0 {
		return ACLEntry{}, fmt.Errorf("%w: acl actions required", ErrValidation)
	}

	s.mu.Lock()
	s.entries[aclKey{e.UserID, e.Resource}] = e
	s.mu.Unlock()
	return e, nil
}

// Remove deletes the entry for the key if present; otherwise a no-op.
func (s *ACLStore) Remove(userID, resource string) bool {
	key := aclKey{userID, resource}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Get returns the raw entry for the key, expired or not.
func (s *ACLStore) Get(userID, resource string) (ACLEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[aclKey{userID, resource}]
	return e, ok
}

// List returns raw entries narrowed by the filter's populated fields.
// Expiry filtering stays with the evaluator.
func (s *ACLStore) List(f ACLFilter) []ACLEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ACLEntry
	for key, e := range s.entries {
		if f.UserID != "" && key.userID != f.UserID {
			continue
		}
		if f.Resource != "" && key.resource != f.Resource {
			continue
		}
		out = append(out, e)
	}
	return out
}

// PurgeExpired drops entries whose expiry has passed.
func (s *ACLStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Replace swaps the entire store contents from a persistence snapshot.
func (s *ACLStore) Replace(entries []ACLEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[aclKey]ACLEntry, len(entries))
	for _, e := range entries {
		if e.UserID == "" || e.Resource == "" || len(e.Actions) == 0 {
			continue
		}
		e.Actions = normalizeAll(e.Actions)
		s.entries[aclKey{e.UserID, e.Resource}] = e
	}
}
