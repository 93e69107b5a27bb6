package rbac

import (
	"fmt"
	"time"

	"farmdash/internal/util"

	"github.com/google/uuid"
)

// roleNamespace seeds deterministic role ids. Changing it would detach every
// existing grant from its id, so it is fixed forever.
var roleNamespace = uuid.MustParse("8f3f2b1a-6a4e-4f29-9d3c-2f6a1f0c5b7e")

// UserRole binds a user to a role type within a scope, with the permission
// list copied from the catalog at grant time. Grants are never updated in
// place; a change of role or scope is modeled as revoke plus new grant.
type UserRole struct {
	ID          string                   `json:"id"`
	UserID      string                   `json:"userId"`
	RoleType    RoleType                 `json:"roleType"`
	ScopeType   ScopeType                `json:"scopeType"`
	ScopeID     string                   `json:"scopeId,omitempty"`
	Permissions []Permission             `json:"permissions"`
	GrantedBy   string                   `json:"grantedBy"`
	GrantedAt   time.Time                `json:"grantedAt"`
	ExpiresAt   util.Optional[time.Time] `json:"expiresAt"`
	IsActive    bool                     `json:"isActive"`
	RevokedAt   util.Optional[time.Time] `json:"revokedAt"`
	RevokedBy   util.Optional[string]    `json:"revokedBy"`
}

// RoleID derives the deterministic id for a grant tuple. At most one live
// grant can exist per (user, roleType, scopeType, scopeID) because re-grants
// resolve to the same id.
func RoleID(userID string, roleType RoleType, scopeType ScopeType, scopeID string) string {
	name := fmt.Sprintf("%s|%s|%s|%s", userID, roleType, scopeType, scopeID)
	return uuid.NewSHA1(roleNamespace, []byte(name)).String()
}

// ActiveAt reports whether the grant is in force at the given instant:
// not revoked and not expired.
func (r UserRole) ActiveAt(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if expires, ok := r.ExpiresAt.Get(); ok && !expires.After(now) {
		return false
	}
	return true
}

// InScope reports whether the grant applies to the requested scope id. A
// grant without a scope id (system scope) is scope-agnostic and always
// applies; an empty requested scope matches any grant.
func (r UserRole) InScope(scopeID string) bool {
	if scopeID == "" || r.ScopeID == "" {
		return true
	}
	return r.ScopeID == scopeID
}

// HasPermission reports membership in the grant's persisted permission list.
// The snapshot taken at grant time is authoritative, not the live catalog.
func (r UserRole) HasPermission(perm Permission) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
