package rbac

import (
	"sort"
	"time"
)

// RoleSet is the request-scoped authorization engine: pure logic over one
// user's loaded role grants. It holds no global state; callers load a fresh
// set per evaluation context (or from the per-session cache) and discard it.
type RoleSet struct {
	roles []UserRole
	now   func() time.Time
}

func NewRoleSet(roles []UserRole) RoleSet {
	return RoleSet{roles: roles, now: time.Now}
}

// newRoleSetAt pins the clock for expiry tests.
func newRoleSetAt(roles []UserRole, now func() time.Time) RoleSet {
	return RoleSet{roles: roles, now: now}
}

// HasPermission reports whether any active, unexpired grant carries the
// permission within the requested scope. Pass an empty scopeID for an
// unscoped check. An empty role set always denies.
func (s RoleSet) HasPermission(perm Permission, scopeID string) bool {
	if s.IsSuperAdmin() {
		return true
	}

	now := s.now()
	for _, role := range s.roles {
		if !role.ActiveAt(now) {
			continue
		}
		if !role.InScope(scopeID) {
			continue
		}
		if role.HasPermission(perm) {
			return true
		}
	}
	return false
}

// HasRole reports whether any active, unexpired grant has the role type
// within the requested scope.
func (s RoleSet) HasRole(roleType RoleType, scopeID string) bool {
	now := s.now()
	for _, role := range s.roles {
		if role.RoleType != roleType {
			continue
		}
		if !role.ActiveAt(now) {
			continue
		}
		if role.InScope(scopeID) {
			return true
		}
	}
	return false
}

func (s RoleSet) IsSuperAdmin() bool {
	return s.HasRole(RoleSuperAdmin, "")
}

// EffectivePermissions returns the sorted union of permissions across all
// active, unexpired grants. Intended for UI capability reflection only;
// authoritative gating must go through HasPermission.
func (s RoleSet) EffectivePermissions() []Permission {
	now := s.now()
	set := make(map[Permission]struct{})
	for _, role := range s.roles {
		if !role.ActiveAt(now) {
			continue
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}

	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles returns a copy of the loaded grants, active or not. Callers may
// not mutate the set the engine evaluates.
func (s RoleSet) Roles() []UserRole {
	out := make([]UserRole, len(s.roles))
	copy(out, s.roles)
	return out
}
