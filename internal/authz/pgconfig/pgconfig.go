// Package pgconfig loads the role catalog from PostgreSQL. Roles and
// permissions are deployment configuration: read once at process start,
// never mutated through the engine.
package pgconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/authz"
)

// Repository reads the role catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rolesQuery = `
SELECT r.name,
       r.description,
       p.action,
       COALESCE(p.resource, ''),
       p.window_start,
       p.window_end,
       p.locations,
       p.condition
FROM authz_roles r
LEFT JOIN authz_permissions p ON p.role_name = r.name
ORDER BY r.name`

// LoadRoles fetches every role with its permissions and builds the
// normalised catalog the evaluator consumes.
func (r *Repository) LoadRoles(ctx context.Context) (authz.RoleSet, error) {
	rows, err := r.pool.Query(ctx, rolesQuery)
	if err != nil {
		return nil, fmt.Errorf("pgconfig: query roles: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*authz.Role)
	var order []string
	for rows.Next() {
		var (
			name, description string
			action, resource  *string
			windowStart       *string
			windowEnd         *string
			locations         []string
			conditionJSON     []byte
		)
		if err := rows.Scan(&name, &description, &action, &resource, &windowStart, &windowEnd, &locations, &conditionJSON); err != nil {
			return nil, fmt.Errorf("pgconfig: scan role row: %w", err)
		}
		role, ok := byName[name]
		if !ok {
			role = &authz.Role{Name: name, Description: description}
			byName[name] = role
			order = append(order, name)
		}
		if action == nil {
			// Role without permissions; still part of the catalog.
			continue
		}
		perm := authz.Permission{Action: *action}
		if resource != nil {
			perm.Resource = *resource
		}
		if windowStart != nil && windowEnd != nil {
			perm.Window = &authz.TimeRange{Start: *windowStart, End: *windowEnd}
		}
		perm.Locations = locations
		if len(conditionJSON) > 0 {
			var cond authz.Condition
			if err := json.Unmarshal(conditionJSON, &cond); err != nil {
				return nil, fmt.Errorf("pgconfig: condition for role %q action %q: %w", name, *action, err)
			}
			perm.Condition = &cond
		}
		role.Permissions = append(role.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgconfig: iterate roles: %w", err)
	}

	roles := make([]authz.Role, 0, len(order))
	for _, name := range order {
		roles = append(roles, *byName[name])
	}
	return authz.NewRoleSet(roles), nil
}
