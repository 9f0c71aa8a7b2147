package authz

import (
	"context"
	"log/slog"
	"time"
)

// Snapshot is the persisted shape of the mutable stores. Roles are
// deployment configuration and are not part of it.
type Snapshot struct {
	Groups      []UserGroup  `json:"groups"`
	Delegations []Delegation `json:"delegations"`
	ACLs        []ACLEntry   `json:"acls"`
}

// SnapshotStore is the external persistence collaborator the stateful
// stores wrap. Persistence is best-effort: a failed save is logged and
// never blocks or fails the mutation that triggered it.
type SnapshotStore interface {
	SaveGroups(ctx context.Context, groups []UserGroup) error
	SaveDelegations(ctx context.Context, delegations []Delegation) error
	SaveACLs(ctx context.Context, entries []ACLEntry) error
	Load(ctx context.Context) (Snapshot, error)
}

// MutationRecorder receives administrative mutations for the audit
// trail.
type MutationRecorder interface {
	RecordMutation(ctx context.Context, op, entity, entityID string, detail map[string]any)
}

// DecisionMetrics observes evaluation outcomes.
type DecisionMetrics interface {
	ObserveDecision(path GrantPath, allowed bool)
}

// AccessControl is the single entry point collaborators depend on: the
// decision surface plus the administrative mutations for groups,
// delegations and ACL entries.
type AccessControl struct {
	eval        *Evaluator
	groups      *GroupStore
	delegations *DelegationStore
	acls        *ACLStore
	registry    *ConditionRegistry
	snapshot    SnapshotStore
	audit       MutationRecorder
	metrics     DecisionMetrics
	logger      *slog.Logger
	clock       func() time.Time
}

// Config wires an AccessControl. Nil stores get fresh empty ones, so a
// zero-dependency construction works for tests.
type Config struct {
	Roles       RoleSet
	Registry    *ConditionRegistry
	Groups      *GroupStore
	Delegations *DelegationStore
	ACLs        *ACLStore
	Snapshot    SnapshotStore
	Faults      FaultRecorder
	Mutations   MutationRecorder
	Metrics     DecisionMetrics
	Logger      *slog.Logger
	Clock       func() time.Time
}

// New constructs the facade and its evaluator.
func New(cfg Config) *AccessControl {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	groups := cfg.Groups
	if groups == nil {
		groups = NewGroupStore()
	}
	delegations := cfg.Delegations
	if delegations == nil {
		delegations = NewDelegationStore()
	}
	acls := cfg.ACLs
	if acls == nil {
		acls = NewACLStore()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewConditionRegistry(logger)
	}
	eval := NewEvaluator(EvaluatorConfig{
		Roles:       cfg.Roles,
		Groups:      groups,
		Delegations: delegations,
		ACLs:        acls,
		Registry:    registry,
		Faults:      cfg.Faults,
		Logger:      logger,
		Clock:       clock,
	})
	return &AccessControl{
		eval:        eval,
		groups:      groups,
		delegations: delegations,
		acls:        acls,
		registry:    registry,
		snapshot:    cfg.Snapshot,
		audit:       cfg.Mutations,
		metrics:     cfg.Metrics,
		logger:      logger,
		clock:       clock,
	}
}

// Registry exposes the condition registry so callers can install
// custom predicates at startup.
func (ac *AccessControl) Registry() *ConditionRegistry {
	return ac.registry
}

// Can reports whether the user may perform the action on the resource.
func (ac *AccessControl) Can(ctx context.Context, user User, action, resource string, env Context) bool {
	return ac.Explain(ctx, user, action, resource, env).Allowed
}

// Explain evaluates like Can and returns the decision trace.
func (ac *AccessControl) Explain(ctx context.Context, user User, action, resource string, env Context) Decision {
	decision := ac.eval.Explain(ctx, user, action, resource, env)
	if ac.metrics != nil {
		ac.metrics.ObserveDecision(decision.Path, decision.Allowed)
	}
	return decision
}

// Hydrate loads the persisted snapshot into the stores. Called once at
// boot before the facade starts serving decisions.
func (ac *AccessControl) Hydrate(ctx context.Context) error {
	if ac.snapshot == nil {
		return nil
	}
	snap, err := ac.snapshot.Load(ctx)
	if err != nil {
		return err
	}
	ac.groups.Replace(snap.Groups)
	ac.delegations.Replace(snap.Delegations)
	ac.acls.Replace(snap.ACLs)
	return nil
}

// AddDelegation validates and records a delegation. The engine does not
// verify the delegator currently holds the delegated actions; the
// delegation is authoritative on its own terms.
func (ac *AccessControl) AddDelegation(ctx context.Context, d Delegation) (Delegation, error) {
	added, err := ac.delegations.Add(d)
	if err != nil {
		return Delegation{}, err
	}
	ac.recordMutation(ctx, "add", "delegation", added.ID, map[string]any{
		"from": added.FromUserID, "to": added.ToUserID, "actions": added.Actions,
	})
	ac.persistDelegations(ctx)
	return added, nil
}

// RemoveDelegation deletes delegations between the pair, optionally
// narrowed to one resource scope. Removing nothing is a no-op.
func (ac *AccessControl) RemoveDelegation(ctx context.Context, fromUserID, toUserID string, resource *string) int {
	removed := ac.delegations.Remove(fromUserID, toUserID, resource)
	if removed > 0 {
		ac.recordMutation(ctx, "remove", "delegation", fromUserID+"->"+toUserID, map[string]any{"count": removed})
		ac.persistDelegations(ctx)
	}
	return removed
}

// ListDelegations returns raw delegations, expired rows included.
func (ac *AccessControl) ListDelegations(f DelegationFilter) []Delegation {
	return ac.delegations.List(f)
}

// AddGroup validates and inserts a group.
func (ac *AccessControl) AddGroup(ctx context.Context, g UserGroup) (UserGroup, error) {
	added, err := ac.groups.Add(g)
	if err != nil {
		return UserGroup{}, err
	}
	ac.recordMutation(ctx, "add", "group", added.ID, map[string]any{"name": added.Name})
	ac.persistGroups(ctx)
	return added, nil
}

// UpdateGroup applies a partial update; a missing id yields
// ErrNotFound, not a failure of the store.
func (ac *AccessControl) UpdateGroup(ctx context.Context, id string, patch GroupPatch) (UserGroup, error) {
	updated, ok := ac.groups.Update(id, patch)
	if !ok {
		return UserGroup{}, ErrNotFound
	}
	ac.recordMutation(ctx, "update", "group", id, nil)
	ac.persistGroups(ctx)
	return updated, nil
}

// RemoveGroup deletes a group; a missing id yields ErrNotFound.
func (ac *AccessControl) RemoveGroup(ctx context.Context, id string) error {
	if !ac.groups.Remove(id) {
		return ErrNotFound
	}
	ac.recordMutation(ctx, "remove", "group", id, nil)
	ac.persistGroups(ctx)
	return nil
}

// ListGroups returns every group.
func (ac *AccessControl) ListGroups() []UserGroup {
	return ac.groups.List()
}

// AddUserToGroup is idempotent: adding an existing member changes
// nothing.
func (ac *AccessControl) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	if !ac.groups.AddMember(groupID, userID) {
		return ErrNotFound
	}
	ac.recordMutation(ctx, "add_member", "group", groupID, map[string]any{"user": userID})
	ac.persistGroups(ctx)
	return nil
}

// RemoveUserFromGroup takes effect on the next evaluation; removing an
// absent member is a no-op.
func (ac *AccessControl) RemoveUserFromGroup(ctx context.Context, groupID, userID string) error {
	if !ac.groups.RemoveMember(groupID, userID) {
		return ErrNotFound
	}
	ac.recordMutation(ctx, "remove_member", "group", groupID, map[string]any{"user": userID})
	ac.persistGroups(ctx)
	return nil
}

// SetACL upserts the entry for (user, resource), replacing any prior
// entry in full.
func (ac *AccessControl) SetACL(ctx context.Context, e ACLEntry) (ACLEntry, error) {
	set, err := ac.acls.Set(e)
	if err != nil {
		return ACLEntry{}, err
	}
	ac.recordMutation(ctx, "set", "acl", set.UserID+"/"+set.Resource, map[string]any{"actions": set.Actions})
	ac.persistACLs(ctx)
	return set, nil
}

// RemoveACL deletes the entry if present; otherwise a no-op.
func (ac *AccessControl) RemoveACL(ctx context.Context, userID, resource string) bool {
	removed := ac.acls.Remove(userID, resource)
	if removed {
		ac.recordMutation(ctx, "remove", "acl", userID+"/"+resource, nil)
		ac.persistACLs(ctx)
	}
	return removed
}

// ListACLs returns raw entries narrowed by the filter.
func (ac *AccessControl) ListACLs(f ACLFilter) []ACLEntry {
	return ac.acls.List(f)
}

// PurgeExpired drops expired delegations and ACL entries from the
// stores and the snapshot. Decisions are unaffected: lazy expiry
// already excludes those rows.
func (ac *AccessControl) PurgeExpired(ctx context.Context) int {
	now := ac.clock()
	removed := ac.delegations.PurgeExpired(now)
	removed += ac.acls.PurgeExpired(now)
	if removed > 0 {
		ac.persistDelegations(ctx)
		ac.persistACLs(ctx)
	}
	return removed
}

func (ac *AccessControl) recordMutation(ctx context.Context, op, entity, entityID string, detail map[string]any) {
	if ac.audit == nil {
		return
	}
	ac.audit.RecordMutation(ctx, op, entity, entityID, detail)
}

func (ac *AccessControl) persistGroups(ctx context.Context) {
	if ac.snapshot == nil {
		return
	}
	if err := ac.snapshot.SaveGroups(ctx, ac.groups.List()); err != nil {
		ac.logger.Warn("persist groups", slog.Any("error", err))
	}
}

func (ac *AccessControl) persistDelegations(ctx context.Context) {
	if ac.snapshot == nil {
		return
	}
	if err := ac.snapshot.SaveDelegations(ctx, ac.delegations.List(DelegationFilter{})); err != nil {
		ac.logger.Warn("persist delegations", slog.Any("error", err))
	}
}

func (ac *AccessControl) persistACLs(ctx context.Context) {
	if ac.snapshot == nil {
		return
	}
	if err := ac.snapshot.SaveACLs(ctx, ac.acls.List(ACLFilter{})); err != nil {
		ac.logger.Warn("persist acls", slog.Any("error", err))
	}
}
