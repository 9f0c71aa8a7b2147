package authz

// Administrative actions guarding the engine's own HTTP surface. The
// engine does not self-authorize; the API layer runs these through Can
// before invoking a mutation.
const (
	ActionDelegationsView   = "authz.delegations.view"
	ActionDelegationsManage = "authz.delegations.manage"

	ActionGroupsView   = "authz.groups.view"
	ActionGroupsManage = "authz.groups.manage"

	ActionACLView   = "authz.acl.view"
	ActionACLManage = "authz.acl.manage"

	ActionCheck = "authz.check"
)

// AdminScopes lists every administrative action.
func AdminScopes() []string {
	return []string{
		ActionDelegationsView,
		ActionDelegationsManage,
		ActionGroupsView,
		ActionGroupsManage,
		ActionACLView,
		ActionACLManage,
		ActionCheck,
	}
}

// AdminRole is the built-in role granting the full administrative
// surface. It is merged into the catalog at startup so a fresh
// deployment can be administered at all.
func AdminRole() Role {
	perms := make([]Permission, 0, len(AdminScopes()))
	for _, action := range AdminScopes() {
		perms = append(perms, Permission{Action: action})
	}
	return Role{Name: "authz_admin", Description: "Full access-control administration", Permissions: perms}
}
