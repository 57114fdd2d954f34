package permissions

// Authorizer evaluates both authority rules of the dashboard: the coarse role
// gate in front of every permission mutation and the per-capability gate used
// by feature code.
type Authorizer interface {
	CanMutatePermissions(actor Profile) bool
	HasCapability(user UserPermissions, t Type) bool
}

// RoleAuthorizer lets admins manage permissions and answers capability checks
// from the resolved grant set only.
type RoleAuthorizer struct{}

// CanMutatePermissions reports whether actor holds the admin role.
func (RoleAuthorizer) CanMutatePermissions(actor Profile) bool {
	return actor.Role == RoleAdmin
}

// HasCapability reports whether the resolved set of user grants t.
func (RoleAuthorizer) HasCapability(user UserPermissions, t Type) bool {
	return HasPermission(user.Permissions, t)
}

var _ Authorizer = RoleAuthorizer{}
