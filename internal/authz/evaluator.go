package authz

import (
	"context"
	"log/slog"
	"time"
)

// ConditionFault describes one failed condition evaluation. Faults are
// audit material only; the permission that faulted simply does not
// grant.
type ConditionFault struct {
	UserID   string
	Action   string
	Resource string
	Role     string
	Detail   string
	At       time.Time
}

// FaultRecorder receives condition faults for the audit trail.
type FaultRecorder interface {
	RecordFault(ctx context.Context, fault ConditionFault)
}

// Evaluator is the decision core. It is stateless per call; all
// mutable state lives in the stores it reads.
type Evaluator struct {
	roles       RoleSet
	groups      *GroupStore
	delegations *DelegationStore
	acls        *ACLStore
	registry    *ConditionRegistry
	faults      FaultRecorder
	logger      *slog.Logger
	clock       func() time.Time
}

// EvaluatorConfig collects the evaluator's collaborators. Roles,
// Groups, Delegations, ACLs and Registry are required; the rest may be
// nil.
type EvaluatorConfig struct {
	Roles       RoleSet
	Groups      *GroupStore
	Delegations *DelegationStore
	ACLs        *ACLStore
	Registry    *ConditionRegistry
	Faults      FaultRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	roles := cfg.Roles
	if roles == nil {
		roles = RoleSet{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewConditionRegistry(logger)
	}
	return &Evaluator{
		roles:       roles,
		groups:      cfg.Groups,
		delegations: cfg.Delegations,
		acls:        cfg.ACLs,
		registry:    registry,
		faults:      cfg.Faults,
		logger:      logger,
		clock:       clock,
	}
}

// Can reports whether the user may perform the action on the resource.
// It never returns an error and never panics: internal faults and
// legitimate denies are indistinguishable here, only the audit trace
// tells them apart.
func (e *Evaluator) Can(ctx context.Context, user User, action, resource string, env Context) bool {
	return e.Explain(ctx, user, action, resource, env).Allowed
}

// Explain evaluates like Can and returns the full decision trace. The
// trace never changes the boolean outcome.
func (e *Evaluator) Explain(ctx context.Context, user User, action, resource string, env Context) (decision Decision) {
	now := env.CurrentTime
	if now.IsZero() {
		now = e.clock()
	}
	decision = Decision{
		Path:        PathNone,
		UserID:      user.ID,
		Action:      action,
		Resource:    resource,
		EvaluatedAt: now,
	}

	// Secure default: whatever goes wrong below, the answer is deny.
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("evaluation panic", slog.Any("panic", rec), slog.String("user", user.ID))
			decision.Allowed = false
			decision.Path = PathNone
		}
	}()

	action = normalize(action)
	if action == "" || user.ID == "" {
		return decision
	}
	if ctx.Err() != nil {
		return decision
	}

	if role, ok := e.roleGrant(ctx, user, action, resource, env, now, &decision); ok {
		decision.Allowed = true
		decision.Path = PathRole
		decision.Role = role
		return decision
	}
	if ctx.Err() != nil {
		// Cancellation mid-flight resolves to deny, never a partial true.
		decision.Allowed = false
		decision.Path = PathNone
		return decision
	}

	if id, ok := e.delegationGrant(user, action, resource, now); ok {
		decision.Allowed = true
		decision.Path = PathDelegation
		decision.DelegationID = id
		return decision
	}

	if e.aclGrant(user, action, resource, now) {
		decision.Allowed = true
		decision.Path = PathACL
		return decision
	}
	return decision
}

// roleGrant walks the effective role set looking for one permission
// whose every present axis holds.
func (e *Evaluator) roleGrant(ctx context.Context, user User, action, resource string, env Context, now time.Time, decision *Decision) (string, bool) {
	for _, roleName := range e.effectiveRoles(user) {
		role, ok := e.roles[roleName]
		if !ok {
			// Stale assignment to a role the catalog no longer carries.
			continue
		}
		for _, perm := range role.Permissions {
			if ctx.Err() != nil {
				return "", false
			}
			if perm.Action != action {
				continue
			}
			if perm.Resource != "" && perm.Resource != resource {
				continue
			}
			if e.permissionSatisfied(ctx, perm, user, env, now, role.Name, decision) {
				return role.Name, true
			}
		}
	}
	return "", false
}

// effectiveRoles is the union of the user's own roles and the roles of
// every group the user currently belongs to.
func (e *Evaluator) effectiveRoles(user User) []string {
	seen := make(map[string]struct{}, len(user.Roles))
	out := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		r = normalize(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if e.groups == nil {
		return out
	}
	for _, r := range e.groups.RolesFor(user.ID) {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// permissionSatisfied checks every present axis of one permission. Any
// axis fault counts as not satisfied and is recorded; evaluation of
// other candidates continues.
func (e *Evaluator) permissionSatisfied(ctx context.Context, perm Permission, user User, env Context, now time.Time, roleName string, decision *Decision) bool {
	if perm.Window != nil {
		inside, err := perm.Window.Contains(now)
		if err != nil {
			e.recordFault(ctx, user, decision, roleName, err.Error())
			return false
		}
		if !inside {
			return false
		}
	}
	if len(perm.Locations) > 0 && !containsString(perm.Locations, normalize(env.Location)) {
		return false
	}
	if perm.Condition != nil {
		ok, err := e.registry.Evaluate(ctx, perm.Condition, user, env, now)
		if err != nil {
			e.recordFault(ctx, user, decision, roleName, err.Error())
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func (e *Evaluator) delegationGrant(user User, action, resource string, now time.Time) (string, bool) {
	if e.delegations == nil {
		return "", false
	}
	for _, d := range e.delegations.List(DelegationFilter{ToUserID: user.ID}) {
		if d.Expired(now) {
			continue
		}
		if d.Resource != "" && d.Resource != resource {
			continue
		}
		if containsString(d.Actions, action) {
			return d.ID, true
		}
	}
	return "", false
}

func (e *Evaluator) aclGrant(user User, action, resource string, now time.Time) bool {
	if e.acls == nil {
		return false
	}
	entry, ok := e.acls.Get(user.ID, resource)
	if !ok || entry.Expired(now) {
		return false
	}
	return containsString(entry.Actions, action)
}

func (e *Evaluator) recordFault(ctx context.Context, user User, decision *Decision, roleName, detail string) {
	decision.Faults = append(decision.Faults, detail)
	e.logger.Warn("condition fault",
		slog.String("user", user.ID),
		slog.String("action", decision.Action),
		slog.String("role", roleName),
		slog.String("detail", detail),
	)
	if e.faults != nil {
		e.faults.RecordFault(ctx, ConditionFault{
			UserID:   user.ID,
			Action:   decision.Action,
			Resource: decision.Resource,
			Role:     roleName,
			Detail:   detail,
			At:       decision.EvaluatedAt,
		})
	}
}
