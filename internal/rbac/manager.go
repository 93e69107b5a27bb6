package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"farmdash/internal/audit"
	"farmdash/internal/store"
	"farmdash/internal/util"
)

var (
	ErrInvalidRoleType  = errors.New("invalid role type")
	ErrInvalidScopeType = errors.New("invalid scope type")
	ErrScopeIDRequired  = errors.New("scope id is required for organization and farm scopes")
	ErrScopeIDForbidden = errors.New("scope id must be empty for system scope")
	ErrRoleNotFound     = errors.New("role not found")
)

// RoleCache caches a user's resolved role set between requests. A miss or a
// cache failure falls through to the document store.
type RoleCache interface {
	GetRoles(ctx context.Context, userID string) ([]UserRole, bool)
	SetRoles(ctx context.Context, userID string, roles []UserRole)
	Invalidate(ctx context.Context, userID string)
}

// Manager persists role grants and loads role sets. It is the only writer of
// the userRoles collection.
type Manager struct {
	logger  *slog.Logger
	store   store.DocumentStore
	auditor *audit.Auditor
	cache   RoleCache
}

// NewManager creates a role manager. cache may be nil, in which case every
// load hits the document store.
func NewManager(logger *slog.Logger, docs store.DocumentStore, auditor *audit.Auditor, cache RoleCache) Manager {
	return Manager{
		logger:  logger.With("component", "rbac"),
		store:   docs,
		auditor: auditor,
		cache:   cache,
	}
}

type GrantRoleParam struct {
	UserID    string
	RoleType  RoleType
	ScopeType ScopeType
	ScopeID   string
	GrantedBy string
	ExpiresAt util.Optional[time.Time]
}

// GrantRole persists a role grant with a permission snapshot from the
// catalog. Granting the same (user, roleType, scopeType, scopeID) tuple
// twice resolves to the same deterministic id, so a second grant overwrites
// rather than duplicates; re-granting a revoked tuple reactivates it.
func (m *Manager) GrantRole(ctx context.Context, param GrantRoleParam) (UserRole, error) {
	var role UserRole

	if !param.RoleType.IsValid() {
		return role, fmt.Errorf("%w: %s", ErrInvalidRoleType, param.RoleType)
	}
	if !param.ScopeType.IsValid() {
		return role, fmt.Errorf("%w: %s", ErrInvalidScopeType, param.ScopeType)
	}
	if param.ScopeType == ScopeSystem && param.ScopeID != "" {
		return role, ErrScopeIDForbidden
	}
	if param.ScopeType != ScopeSystem && param.ScopeID == "" {
		return role, ErrScopeIDRequired
	}

	role = UserRole{
		ID:          RoleID(param.UserID, param.RoleType, param.ScopeType, param.ScopeID),
		UserID:      param.UserID,
		RoleType:    param.RoleType,
		ScopeType:   param.ScopeType,
		ScopeID:     param.ScopeID,
		Permissions: PermissionsForRole(param.RoleType),
		GrantedBy:   param.GrantedBy,
		GrantedAt:   time.Now().UTC(),
		ExpiresAt:   param.ExpiresAt,
		IsActive:    true,
	}

	if err := m.store.Put(ctx, store.CollectionUserRoles, role.ID, role); err != nil {
		return UserRole{}, fmt.Errorf("failed to persist role grant: %w", err)
	}

	if m.cache != nil {
		m.cache.Invalidate(ctx, param.UserID)
	}

	m.auditor.Record(ctx, param.GrantedBy, "role:granted", "userRole", role.ID, map[string]any{
		"user_id":    param.UserID,
		"role_type":  param.RoleType,
		"scope_type": param.ScopeType,
		"scope_id":   param.ScopeID,
	})

	return role, nil
}

// RevokeRole deactivates a grant and stamps revocation metadata. Revoking a
// role id that does not exist is a no-op with a logged warning.
func (m *Manager) RevokeRole(ctx context.Context, roleID, revokedBy string) error {
	var role UserRole
	if err := m.store.Get(ctx, store.CollectionUserRoles, roleID, &role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("revoke requested for unknown role", "role_id", roleID, "revoked_by", revokedBy)
			return nil
		}
		return fmt.Errorf("failed to load role %s: %w", roleID, err)
	}

	// Snapshot before mutation so the audit entry can reconstruct the grant.
	snapshot := map[string]any{
		"user_id":     role.UserID,
		"role_type":   role.RoleType,
		"scope_type":  role.ScopeType,
		"scope_id":    role.ScopeID,
		"permissions": role.Permissions,
		"granted_by":  role.GrantedBy,
		"granted_at":  role.GrantedAt,
	}

	role.IsActive = false
	role.RevokedAt = util.Some(time.Now().UTC())
	role.RevokedBy = util.Some(revokedBy)

	if err := m.store.Put(ctx, store.CollectionUserRoles, role.ID, role); err != nil {
		return fmt.Errorf("failed to persist role revocation: %w", err)
	}

	if m.cache != nil {
		m.cache.Invalidate(ctx, role.UserID)
	}

	m.auditor.Record(ctx, revokedBy, "role:revoked", "userRole", role.ID, snapshot)

	return nil
}

// GetRole loads a single grant by id.
func (m *Manager) GetRole(ctx context.Context, roleID string) (UserRole, error) {
	var role UserRole
	if err := m.store.Get(ctx, store.CollectionUserRoles, roleID, &role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserRole{}, ErrRoleNotFound
		}
		return UserRole{}, fmt.Errorf("failed to load role %s: %w", roleID, err)
	}
	return role, nil
}

// RolesForUser loads all active grants for a user, from cache when possible.
// Revoked grants are filtered by the query; expired ones are filtered at
// evaluation time by the role set.
func (m *Manager) RolesForUser(ctx context.Context, userID string) ([]UserRole, error) {
	if m.cache != nil {
		if roles, ok := m.cache.GetRoles(ctx, userID); ok {
			return roles, nil
		}
	}

	raws, err := m.store.Query(ctx, store.CollectionUserRoles, []store.Filter{
		store.Where("userId", userID),
		store.Where("isActive", true),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles for user %s: %w", userID, err)
	}

	roles, err := store.Decode[UserRole](raws)
	if err != nil {
		return nil, fmt.Errorf("failed to decode roles for user %s: %w", userID, err)
	}

	if m.cache != nil {
		m.cache.SetRoles(ctx, userID, roles)
	}
	return roles, nil
}

// RoleSetForUser loads a user's active grants into a request-scoped engine.
func (m *Manager) RoleSetForUser(ctx context.Context, userID string) (RoleSet, error) {
	roles, err := m.RolesForUser(ctx, userID)
	if err != nil {
		return RoleSet{}, err
	}
	return NewRoleSet(roles), nil
}

// ListFarmMembers returns the active grants scoped to a farm.
func (m *Manager) ListFarmMembers(ctx context.Context, farmID string) ([]UserRole, error) {
	raws, err := m.store.Query(ctx, store.CollectionUserRoles, []store.Filter{
		store.Where("scopeType", ScopeFarm),
		store.Where("scopeId", farmID),
		store.Where("isActive", true),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query members for farm %s: %w", farmID, err)
	}
	return store.Decode[UserRole](raws)
}
