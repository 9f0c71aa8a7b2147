package authz

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DelegationFilter narrows List and Remove operations. A nil Resource
// means "any resource scope"; a non-nil empty string matches only
// unscoped delegations.
type DelegationFilter struct {
	FromUserID string
	ToUserID   string
	Resource   *string
}

// DelegationStore owns Delegation records. Expired rows stay listed
// until purged; expiry filtering happens at evaluation time.
type DelegationStore struct {
	mu   sync.RWMutex
	byID map[string]Delegation
	byTo map[string]map[string]struct{} // toUserID -> delegation IDs
}

// NewDelegationStore constructs an empty store.
func NewDelegationStore() *DelegationStore {
	return &DelegationStore{
		byID: make(map[string]Delegation),
		byTo: make(map[string]map[string]struct{}),
	}
}

// Add validates and appends a delegation, assigning an ID when missing.
func (s *DelegationStore) Add(d Delegation) (Delegation, error) {
	if d.FromUserID == "" {
		return Delegation{}, fmt.Errorf("%w: delegation from_user_id required", ErrValidation)
	}
	if d.ToUserID == "" {
		return Delegation{}, fmt.Errorf("%w: delegation to_user_id required", ErrValidation)
	}
	d.Actions = normalizeAll(d.Actions)
	if len(d.Actions) == 0 {
		return Delegation{}, fmt.Errorf("%w: delegation actions required", ErrValidation)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[d.ID]; exists {
		return Delegation{}, fmt.Errorf("%w: delegation %q already exists", ErrValidation, d.ID)
	}
	s.byID[d.ID] = d
	s.index(d)
	return d, nil
}

// Remove deletes delegations between a user pair by structural match on
// the given keys. A nil resource removes every delegation between the
// pair; otherwise only delegations with that exact resource scope go.
// Removing nothing is a no-op; the count says how many matched.
func (s *DelegationStore) Remove(fromUserID, toUserID string, resource *string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, d := range s.byID {
		if d.FromUserID != fromUserID || d.ToUserID != toUserID {
			continue
		}
		if resource != nil && d.Resource != *resource {
			continue
		}
		delete(s.byID, id)
		s.unindex(d)
		removed++
	}
	return removed
}

// List returns raw entries, expired ones included, narrowed by the
// filter's populated fields.
func (s *DelegationStore) List(f DelegationFilter) []Delegation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Delegation
	if f.ToUserID != "" {
		for id := range s.byTo[f.ToUserID] {
			if d, ok := s.byID[id]; ok && matchDelegation(d, f) {
				out = append(out, d)
			}
		}
		return out
	}
	for _, d := range s.byID {
		if matchDelegation(d, f) {
			out = append(out, d)
		}
	}
	return out
}

// PurgeExpired drops rows whose expiry has passed. Storage hygiene
// only: lazy expiry already keeps them out of decisions.
func (s *DelegationStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, d := range s.byID {
		if d.Expired(now) {
			delete(s.byID, id)
			s.unindex(d)
			removed++
		}
	}
	return removed
}

// Replace swaps the entire store contents from a persistence snapshot.
func (s *DelegationStore) Replace(delegations []Delegation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]Delegation, len(delegations))
	s.byTo = make(map[string]map[string]struct{})
	for _, d := range delegations {
		if d.ID == "" || d.FromUserID == "" || d.ToUserID == "" || len(d.Actions) == 0 {
			continue
		}
		d.Actions = normalizeAll(d.Actions)
		s.byID[d.ID] = d
		s.index(d)
	}
}

func (s *DelegationStore) index(d Delegation) {
	set, ok := s.byTo[d.ToUserID]
	if !ok {
		set = make(map[string]struct{})
		s.byTo[d.ToUserID] = set
	}
	set[d.ID] = struct{}{}
}

func (s *DelegationStore) unindex(d Delegation) {
	set, ok := s.byTo[d.ToUserID]
	if !ok {
		return
	}
	delete(set, d.ID)
	if len(set) == 0 {
		delete(s.byTo, d.ToUserID)
	}
}

func matchDelegation(d Delegation, f DelegationFilter) bool {
	if f.FromUserID != "" && d.FromUserID != f.FromUserID {
		return false
	}
	if f.ToUserID != "" && d.ToUserID != f.ToUserID {
		return false
	}
	if f.Resource != nil && d.Resource != *f.Resource {
		return false
	}
	return true
}
