package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farmdash/internal/util"
)

func grant(userID string, roleType RoleType, scopeType ScopeType, scopeID string) UserRole {
	return UserRole{
		ID:          RoleID(userID, roleType, scopeType, scopeID),
		UserID:      userID,
		RoleType:    roleType,
		ScopeType:   scopeType,
		ScopeID:     scopeID,
		Permissions: PermissionsForRole(roleType),
		GrantedBy:   "granter",
		GrantedAt:   time.Now().UTC(),
		IsActive:    true,
	}
}

func TestRoleSet_HasPermission(t *testing.T) {
	tests := []struct {
		name    string
		roles   []UserRole
		perm    Permission
		scopeID string
		want    bool
	}{
		{
			name:  "empty_role_set_denies",
			roles: nil,
			perm:  PermissionFarmView,
			want:  false,
		},
		{
			name:    "viewer_can_view_own_farm",
			roles:   []UserRole{grant("u1", RoleFarmViewer, ScopeFarm, "farm-a")},
			perm:    PermissionFarmView,
			scopeID: "farm-a",
			want:    true,
		},
		{
			name:    "viewer_cannot_view_other_farm",
			roles:   []UserRole{grant("u1", RoleFarmViewer, ScopeFarm, "farm-a")},
			perm:    PermissionFarmView,
			scopeID: "farm-b",
			want:    false,
		},
		{
			name:    "viewer_cannot_edit",
			roles:   []UserRole{grant("u1", RoleFarmViewer, ScopeFarm, "farm-a")},
			perm:    PermissionFarmEdit,
			scopeID: "farm-a",
			want:    false,
		},
		{
			name:    "super_admin_bypasses_scope",
			roles:   []UserRole{grant("u1", RoleSuperAdmin, ScopeSystem, "")},
			perm:    PermissionFarmDelete,
			scopeID: "farm-z",
			want:    true,
		},
		{
			name:    "revoked_grant_denies",
			roles:   []UserRole{func() UserRole { r := grant("u1", RoleFarmOwner, ScopeFarm, "farm-a"); r.IsActive = false; return r }()},
			perm:    PermissionFarmView,
			scopeID: "farm-a",
			want:    false,
		},
		{
			name:  "unscoped_check_matches_scoped_grant",
			roles: []UserRole{grant("u1", RoleFarmViewer, ScopeFarm, "farm-a")},
			perm:  PermissionFarmView,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRoleSet(tt.roles)
			assert.Equal(t, tt.want, s.HasPermission(tt.perm, tt.scopeID))
		})
	}
}

func TestRoleSet_Expiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	seasonal := grant("u1", RoleSeasonalWorker, ScopeFarm, "farm-a")
	seasonal.ExpiresAt = util.Some(now.Add(time.Hour))

	s := newRoleSetAt([]UserRole{seasonal}, func() time.Time { return now })
	assert.True(t, s.HasPermission(PermissionTreeEdit, "farm-a"))

	s = newRoleSetAt([]UserRole{seasonal}, func() time.Time { return now.Add(2 * time.Hour) })
	assert.False(t, s.HasPermission(PermissionTreeEdit, "farm-a"))

	// Expiry boundary itself is expired.
	s = newRoleSetAt([]UserRole{seasonal}, func() time.Time { return now.Add(time.Hour) })
	assert.False(t, s.HasPermission(PermissionTreeEdit, "farm-a"))
}

func TestRoleSet_HasRole(t *testing.T) {
	roles := []UserRole{
		grant("u1", RoleFarmOwner, ScopeFarm, "farm-a"),
		grant("u1", RoleFarmViewer, ScopeFarm, "farm-b"),
	}
	s := NewRoleSet(roles)

	assert.True(t, s.HasRole(RoleFarmOwner, "farm-a"))
	assert.False(t, s.HasRole(RoleFarmOwner, "farm-b"))
	assert.True(t, s.HasRole(RoleFarmViewer, ""))
	assert.False(t, s.HasRole(RoleSuperAdmin, ""))
}

func TestRoleSet_IsSuperAdmin(t *testing.T) {
	assert.False(t, NewRoleSet(nil).IsSuperAdmin())
	assert.True(t, NewRoleSet([]UserRole{grant("u1", RoleSuperAdmin, ScopeSystem, "")}).IsSuperAdmin())

	expired := grant("u1", RoleSuperAdmin, ScopeSystem, "")
	expired.ExpiresAt = util.Some(time.Now().Add(-time.Minute))
	assert.False(t, NewRoleSet([]UserRole{expired}).IsSuperAdmin())
}

func TestRoleSet_EffectivePermissions(t *testing.T) {
	roles := []UserRole{
		grant("u1", RoleFarmViewer, ScopeFarm, "farm-a"),
		grant("u1", RoleSeasonalWorker, ScopeFarm, "farm-b"),
	}
	perms := NewRoleSet(roles).EffectivePermissions()

	assert.Contains(t, perms, PermissionFarmView)
	assert.Contains(t, perms, PermissionTreeEdit)
	assert.Contains(t, perms, PermissionPhotoUpload)

	// Sorted, deduplicated union.
	for i := 1; i < len(perms); i++ {
		assert.Less(t, perms[i-1], perms[i])
	}
}

func TestRoleSet_RolesReturnsCopy(t *testing.T) {
	s := NewRoleSet([]UserRole{grant("u1", RoleFarmViewer, ScopeFarm, "farm-a")})

	roles := s.Roles()
	roles[0].RoleType = RoleSuperAdmin
	roles[0].ScopeType = ScopeSystem
	roles[0].ScopeID = ""

	assert.False(t, s.IsSuperAdmin())
	assert.False(t, s.HasPermission(PermissionFarmEdit, "farm-a"))
}

func TestRoleID_Deterministic(t *testing.T) {
	a := RoleID("u1", RoleFarmOwner, ScopeFarm, "farm-a")
	b := RoleID("u1", RoleFarmOwner, ScopeFarm, "farm-a")
	c := RoleID("u1", RoleFarmOwner, ScopeFarm, "farm-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
