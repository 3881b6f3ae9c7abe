package auth

// Permission codes consumed by the guard. Domain modules register their own
// codes through migrations; these are the ones the auth service itself
// enforces.
const (
	PermRoleManage   = "role:manage"
	PermRoleAssign   = "role:assign"
	PermIdentityRead = "identity:read"
)

// BuiltinPermissions are seeded at deploy time.
var BuiltinPermissions = []Permission{
	{Key: PermRoleManage, Description: "Create roles and edit their permissions"},
	{Key: PermRoleAssign, Description: "Assign and remove roles on identities"},
	{Key: PermIdentityRead, Description: "Inspect identities and their effective permissions"},
}
