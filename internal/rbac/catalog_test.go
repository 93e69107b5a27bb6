package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsForRole(t *testing.T) {
	tests := []struct {
		name     string
		role     RoleType
		contains []Permission
		excludes []Permission
	}{
		{
			name:     "super_admin_has_everything",
			role:     RoleSuperAdmin,
			contains: []Permission{PermissionFarmDelete, PermissionUserDelete, PermissionRoleGrant, PermissionAuditView},
		},
		{
			name:     "organization_admin_cannot_delete_farms_or_users",
			role:     RoleOrganizationAdmin,
			contains: []Permission{PermissionFarmCreate, PermissionOrgEdit, PermissionRoleGrant},
			excludes: []Permission{PermissionFarmDelete, PermissionUserDelete},
		},
		{
			name:     "farm_owner_manages_own_farm",
			role:     RoleFarmOwner,
			contains: []Permission{PermissionFarmDelete, PermissionUserInvite, PermissionRoleGrant},
			excludes: []Permission{PermissionFarmCreate, PermissionOrgEdit},
		},
		{
			name:     "farm_manager_has_no_role_management",
			role:     RoleFarmManager,
			contains: []Permission{PermissionFarmEdit, PermissionTreeDelete, PermissionUserView},
			excludes: []Permission{PermissionRoleGrant, PermissionRoleRevoke, PermissionFarmDelete},
		},
		{
			name:     "farm_viewer_is_read_only",
			role:     RoleFarmViewer,
			contains: []Permission{PermissionFarmView, PermissionTreeView, PermissionZoneView, PermissionPhotoView},
			excludes: []Permission{PermissionFarmEdit, PermissionTreeCreate, PermissionPhotoUpload},
		},
		{
			name:     "seasonal_worker_edits_trees_and_uploads_photos",
			role:     RoleSeasonalWorker,
			contains: []Permission{PermissionTreeEdit, PermissionPhotoUpload},
			excludes: []Permission{PermissionTreeCreate, PermissionTreeDelete, PermissionZoneEdit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := PermissionsForRole(tt.role)
			for _, p := range tt.contains {
				assert.Contains(t, perms, p)
			}
			for _, p := range tt.excludes {
				assert.NotContains(t, perms, p)
			}
		})
	}
}

func TestPermissionsForRole_UnknownRolePanics(t *testing.T) {
	assert.Panics(t, func() {
		PermissionsForRole(RoleType("gardener"))
	})
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleFarmViewer)
	perms[0] = Permission("tampered")

	assert.Equal(t, PermissionFarmView, PermissionsForRole(RoleFarmViewer)[0])
}

func TestParseRoleType(t *testing.T) {
	role, err := ParseRoleType("farm_manager")
	require.NoError(t, err)
	assert.Equal(t, RoleFarmManager, role)

	_, err = ParseRoleType("admin")
	assert.Error(t, err)
}

func TestScopeTypeIsValid(t *testing.T) {
	assert.True(t, ScopeSystem.IsValid())
	assert.True(t, ScopeOrganization.IsValid())
	assert.True(t, ScopeFarm.IsValid())
	assert.False(t, ScopeType("region").IsValid())
}
