package rbac

import "fmt"

// Permission is a fine-grained capability from the closed catalog below.
// Permissions are opaque strings, versioned only by code change.
type Permission string

const (
	PermissionFarmView   Permission = "farm:view"
	PermissionFarmCreate Permission = "farm:create"
	PermissionFarmEdit   Permission = "farm:edit"
	PermissionFarmDelete Permission = "farm:delete"

	PermissionTreeView   Permission = "tree:view"
	PermissionTreeCreate Permission = "tree:create"
	PermissionTreeEdit   Permission = "tree:edit"
	PermissionTreeDelete Permission = "tree:delete"

	PermissionZoneView   Permission = "zone:view"
	PermissionZoneCreate Permission = "zone:create"
	PermissionZoneEdit   Permission = "zone:edit"
	PermissionZoneDelete Permission = "zone:delete"

	PermissionPhotoView   Permission = "photo:view"
	PermissionPhotoUpload Permission = "photo:upload"
	PermissionPhotoDelete Permission = "photo:delete"

	PermissionUserView   Permission = "user:view"
	PermissionUserInvite Permission = "user:invite"
	PermissionUserEdit   Permission = "user:edit"
	PermissionUserDelete Permission = "user:delete"

	PermissionOrgView Permission = "org:view"
	PermissionOrgEdit Permission = "org:edit"

	PermissionRoleGrant  Permission = "role:grant"
	PermissionRoleRevoke Permission = "role:revoke"

	PermissionAuditView Permission = "audit:view"
)

// RoleType identifies one of the fixed role archetypes.
type RoleType string

const (
	RoleSuperAdmin        RoleType = "super_admin"
	RoleOrganizationAdmin RoleType = "organization_admin"
	RoleFarmOwner         RoleType = "farm_owner"
	RoleFarmManager       RoleType = "farm_manager"
	RoleFarmViewer        RoleType = "farm_viewer"
	RoleSeasonalWorker    RoleType = "seasonal_worker"
)

func (r RoleType) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrganizationAdmin, RoleFarmOwner, RoleFarmManager, RoleFarmViewer, RoleSeasonalWorker:
		return true
	default:
		return false
	}
}

func (r RoleType) String() string {
	return string(r)
}

func ParseRoleType(s string) (RoleType, error) {
	role := RoleType(s)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role type: %s", s)
	}
	return role, nil
}

// ScopeType is the boundary within which a role's permissions apply.
type ScopeType string

const (
	ScopeSystem       ScopeType = "system"
	ScopeOrganization ScopeType = "organization"
	ScopeFarm         ScopeType = "farm"
)

func (s ScopeType) IsValid() bool {
	switch s {
	case ScopeSystem, ScopeOrganization, ScopeFarm:
		return true
	default:
		return false
	}
}

func (s ScopeType) String() string {
	return string(s)
}

// rolePermissions is the single source of truth for what each role means.
// No other component may invent ad-hoc permission lists.
var rolePermissions = map[RoleType][]Permission{
	RoleSuperAdmin: {
		PermissionFarmView, PermissionFarmCreate, PermissionFarmEdit, PermissionFarmDelete,
		PermissionTreeView, PermissionTreeCreate, PermissionTreeEdit, PermissionTreeDelete,
		PermissionZoneView, PermissionZoneCreate, PermissionZoneEdit, PermissionZoneDelete,
		PermissionPhotoView, PermissionPhotoUpload, PermissionPhotoDelete,
		PermissionUserView, PermissionUserInvite, PermissionUserEdit, PermissionUserDelete,
		PermissionOrgView, PermissionOrgEdit,
		PermissionRoleGrant, PermissionRoleRevoke,
		PermissionAuditView,
	},
	RoleOrganizationAdmin: {
		PermissionFarmView, PermissionFarmCreate, PermissionFarmEdit,
		PermissionTreeView, PermissionTreeCreate, PermissionTreeEdit, PermissionTreeDelete,
		PermissionZoneView, PermissionZoneCreate, PermissionZoneEdit, PermissionZoneDelete,
		PermissionPhotoView, PermissionPhotoUpload, PermissionPhotoDelete,
		PermissionUserView, PermissionUserInvite, PermissionUserEdit,
		PermissionOrgView, PermissionOrgEdit,
		PermissionRoleGrant, PermissionRoleRevoke,
		PermissionAuditView,
	},
	RoleFarmOwner: {
		PermissionFarmView, PermissionFarmEdit, PermissionFarmDelete,
		PermissionTreeView, PermissionTreeCreate, PermissionTreeEdit, PermissionTreeDelete,
		PermissionZoneView, PermissionZoneCreate, PermissionZoneEdit, PermissionZoneDelete,
		PermissionPhotoView, PermissionPhotoUpload, PermissionPhotoDelete,
		PermissionUserView, PermissionUserInvite,
		PermissionRoleGrant, PermissionRoleRevoke,
		PermissionAuditView,
	},
	RoleFarmManager: {
		PermissionFarmView, PermissionFarmEdit,
		PermissionTreeView, PermissionTreeCreate, PermissionTreeEdit, PermissionTreeDelete,
		PermissionZoneView, PermissionZoneCreate, PermissionZoneEdit,
		PermissionPhotoView, PermissionPhotoUpload, PermissionPhotoDelete,
		PermissionUserView,
	},
	RoleFarmViewer: {
		PermissionFarmView,
		PermissionTreeView,
		PermissionZoneView,
		PermissionPhotoView,
	},
	RoleSeasonalWorker: {
		PermissionFarmView,
		PermissionTreeView, PermissionTreeEdit,
		PermissionZoneView,
		PermissionPhotoView, PermissionPhotoUpload,
	},
}

// PermissionsForRole returns the granted permission set for a role type, in
// catalog order. Unknown role types are a programming error and panic.
func PermissionsForRole(role RoleType) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		panic(fmt.Sprintf("rbac: no permissions defined for role type %q", role))
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
