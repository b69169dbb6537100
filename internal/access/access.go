package access

// Scope identifies the entity kind a membership is attached to.
type Scope string

const (
	ScopeWorkspace Scope = "workspace"
	ScopeProject   Scope = "project"
)

// Role is a membership role within a scope.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"   // workspace only
	RoleManager Role = "manager" // project only
	RoleMember  Role = "member"
)

// PermissionSet is the derived rights of a role in a scope. Workspace and
// project scopes use disjoint halves of the struct; fields outside the scope
// stay false.
type PermissionSet struct {
	// Workspace scope.
	CanCreateProjects  bool `json:"canCreateProjects"`
	CanManageMembers   bool `json:"canManageMembers"`
	CanDeleteWorkspace bool `json:"canDeleteWorkspace"`
	CanModifySettings  bool `json:"canModifySettings"`

	// Project scope.
	CanCreateTasks   bool `json:"canCreateTasks"`
	CanAssignTasks   bool `json:"canAssignTasks"`
	CanDeleteTasks   bool `json:"canDeleteTasks"`
	CanModifyProject bool `json:"canModifyProject"`
}

// ValidRole reports whether the role exists in the given scope.
func ValidRole(scope Scope, role Role) bool {
	switch scope {
	case ScopeWorkspace:
		return role == RoleOwner || role == RoleAdmin || role == RoleMember
	case ScopeProject:
		return role == RoleOwner || role == RoleManager || role == RoleMember
	default:
		return false
	}
}

// Evaluate derives the permission set for a role in a scope. It is pure and
// deterministic: identical inputs always yield identical sets, and it is the
// single source of truth for role checks across the service.
func Evaluate(scope Scope, role Role) PermissionSet {
	switch scope {
	case ScopeWorkspace:
		switch role {
		case RoleOwner:
			return PermissionSet{
				CanCreateProjects:  true,
				CanManageMembers:   true,
				CanDeleteWorkspace: true,
				CanModifySettings:  true,
			}
		case RoleAdmin:
			return PermissionSet{
				CanCreateProjects: true,
				CanManageMembers:  true,
				CanModifySettings: true,
			}
		case RoleMember:
			return PermissionSet{}
		}
	case ScopeProject:
		switch role {
		case RoleOwner:
			return PermissionSet{
				CanCreateTasks:   true,
				CanAssignTasks:   true,
				CanDeleteTasks:   true,
				CanManageMembers: true,
				CanModifyProject: true,
			}
		case RoleManager:
			return PermissionSet{
				CanCreateTasks:   true,
				CanAssignTasks:   true,
				CanDeleteTasks:   true,
				CanManageMembers: true,
				CanModifyProject: true,
			}
		case RoleMember:
			return PermissionSet{CanCreateTasks: true}
		}
	}
	return PermissionSet{}
}
