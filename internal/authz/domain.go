package authz

import "time"

// User is the resolved identity an evaluation runs against. Identity
// resolution happens upstream; the engine only reads it.
type User struct {
	ID    string
	Roles []string
}

// TimeRange bounds a permission to a local time-of-day window in
// "HH:MM" format. The window is half-open: [Start, End).
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ConditionKind discriminates the closed set of condition descriptors.
type ConditionKind string

const (
	// ConditionTimeWindow gates a permission to a time-of-day window.
	ConditionTimeWindow ConditionKind = "time_window"
	// ConditionLocationWhitelist gates a permission to a set of location codes.
	ConditionLocationWhitelist ConditionKind = "location_whitelist"
	// ConditionPredicate references a custom predicate registered at startup.
	ConditionPredicate ConditionKind = "predicate"
)

// Condition is a data-only descriptor resolved through the
// ConditionRegistry at evaluation time. Exactly one of the payload
// fields is meaningful for a given Kind.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Window    *TimeRange    `json:"window,omitempty"`
	Locations []string      `json:"locations,omitempty"`
	Predicate string        `json:"predicate,omitempty"`
}

// Permission grants a single action, optionally scoped to one resource
// and gated by any combination of a condition descriptor, a time window
// and a location whitelist. An absent axis is unconstrained.
type Permission struct {
	Action    string
	Resource  string // empty matches any resource
	Condition *Condition
	Window    *TimeRange
	Locations []string
}

// Role groups permissions under a stable name. Roles are deployment
// configuration loaded once at process start.
type Role struct {
	Name        string
	Description string
	Permissions []Permission
}

// RoleSet is the role catalog keyed by role name.
type RoleSet map[string]Role

// NewRoleSet builds a catalog from a role list, normalising role names,
// actions and location codes so lookups are case-insensitive.
func NewRoleSet(roles []Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		role.Name = normalize(role.Name)
		for i := range role.Permissions {
			role.Permissions[i].Action = normalize(role.Permissions[i].Action)
			role.Permissions[i].Locations = normalizeAll(role.Permissions[i].Locations)
			if cond := role.Permissions[i].Condition; cond != nil {
				cond.Locations = normalizeAll(cond.Locations)
			}
		}
		set[role.Name] = role
	}
	return set
}

// UserGroup assigns roles to every current member at once.
type UserGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Roles   []string `json:"roles"`
}

// Delegation lets ToUserID temporarily exercise a bounded set of
// actions. It is authoritative on its own terms: the engine does not
// re-check the delegator's current permissions.
type Delegation struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Actions    []string  `json:"actions"`
	Resource   string    `json:"resource,omitempty"` // empty scopes to any resource
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the delegation has passed its expiry at the
// given instant. A zero ExpiresAt never expires.
func (d Delegation) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// ACLEntry grants actions on one resource to one user. Entries are
// keyed by (UserID, Resource); writes replace the prior entry in full.
type ACLEntry struct {
	UserID    string    `json:"user_id"`
	Resource  string    `json:"resource"`
	Actions   []string  `json:"actions"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the entry has passed its expiry.
func (e ACLEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Context carries the runtime attributes an evaluation may consult.
// A zero CurrentTime means "now" as seen by the evaluator's clock.
type Context struct {
	CurrentTime time.Time
	Location    string
	Attributes  map[string]any
}

// GrantPath identifies which source produced a grant.
type GrantPath string

const (
	// PathRole marks a grant from the effective role set.
	PathRole GrantPath = "role"
	// PathDelegation marks a grant from an unexpired delegation.
	PathDelegation GrantPath = "delegation"
	// PathACL marks a grant from a resource ACL entry.
	PathACL GrantPath = "acl"
	// PathNone marks a deny.
	PathNone GrantPath = "none"
)

// Decision is the audit trace of one evaluation. It explains the
// boolean outcome and never influences it.
type Decision struct {
	Allowed      bool      `json:"allowed"`
	Path         GrantPath `json:"path"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	Resource     string    `json:"resource"`
	Role         string    `json:"role,omitempty"`          // role-path: granting role name
	DelegationID string    `json:"delegation_id,omitempty"` // delegation-path: granting delegation
	Faults       []string  `json:"faults,omitempty"`        // condition faults observed along the way
	EvaluatedAt  time.Time `json:"evaluated_at"`
}
