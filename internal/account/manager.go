package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"farmdash/internal/audit"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
	"farmdash/internal/util"
)

var ErrUserNotFound = errors.New("account: user not found")

const (
	StatusPendingVerification = "pending_verification"
	StatusActive              = "active"
	StatusSuspended           = "suspended"
)

// User is the application-level profile keyed by the identity uid. Profiles
// are never hard-deleted by this subsystem; deactivation is a status flag.
type User struct {
	UID           string                   `json:"uid"`
	Email         string                   `json:"email"`
	DisplayName   string                   `json:"displayName"`
	EmailVerified bool                     `json:"emailVerified"`
	AccountStatus string                   `json:"accountStatus"`
	Locale        string                   `json:"locale"`
	Timezone      string                   `json:"timezone"`
	LoginCount    int                      `json:"loginCount"`
	LastLoginAt   util.Optional[time.Time] `json:"lastLoginAt"`
	Preferences   Preferences              `json:"preferences"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type Preferences struct {
	Theme              string `json:"theme"`
	EmailNotifications bool   `json:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications"`
	DashboardLayout    string `json:"dashboardLayout"`
	PrivateProfile     bool   `json:"privateProfile"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:              "light",
		EmailNotifications: true,
		PushNotifications:  false,
		DashboardLayout:    "grid",
		PrivateProfile:     false,
	}
}

// Manager resolves and maintains user profiles, including the one-time
// migration of legacy single-tier farm access into role grants.
type Manager struct {
	logger        *slog.Logger
	store         store.DocumentStore
	roles         *rbac.Manager
	auditor       *audit.Auditor
	superAdminUID string
}

func NewManager(logger *slog.Logger, docs store.DocumentStore, roles *rbac.Manager, auditor *audit.Auditor, superAdminUID string) Manager {
	return Manager{
		logger:        logger.With("component", "account"),
		store:         docs,
		roles:         roles,
		auditor:       auditor,
		superAdminUID: superAdminUID,
	}
}

// ResolveProfile loads the profile for an identity token, creating and
// migrating it on first contact. Re-running resolution for the same uid is
// idempotent: role grants use deterministic ids, and the profile is only
// written when absent.
func (m *Manager) ResolveProfile(ctx context.Context, token identity.Token) (User, error) {
	var user User
	err := m.store.Get(ctx, store.CollectionUsers, token.UID, &user)
	if err == nil {
		return normalize(user), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return User{}, fmt.Errorf("failed to load user %s: %w", token.UID, err)
	}

	now := time.Now().UTC()
	user = User{
		UID:           token.UID,
		Email:         token.Email,
		DisplayName:   displayNameFor(token),
		EmailVerified: token.EmailVerified,
		AccountStatus: StatusActive,
		Locale:        "en",
		Timezone:      "UTC",
		Preferences:   DefaultPreferences(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Put(ctx, store.CollectionUsers, user.UID, user); err != nil {
		return User{}, fmt.Errorf("failed to create user %s: %w", user.UID, err)
	}

	issues := m.migrateAccess(ctx, token.UID)

	details := map[string]any{"email": user.Email}
	if len(issues) > 0 {
		details["migration_issues"] = issues
	}
	m.auditor.Record(ctx, user.UID, "user:created", "user", user.UID, details)

	return user, nil
}

// migrateAccess grants the super-admin bootstrap role and converts legacy
// farm access records into role grants. Inconsistencies are collected and
// reported, never fatal: remaining records still migrate.
func (m *Manager) migrateAccess(ctx context.Context, uid string) []string {
	var issues []string

	if m.superAdminUID != "" && uid == m.superAdminUID {
		if _, err := m.roles.GrantRole(ctx, rbac.GrantRoleParam{
			UserID:    uid,
			RoleType:  rbac.RoleSuperAdmin,
			ScopeType: rbac.ScopeSystem,
			GrantedBy: uid,
		}); err != nil {
			issues = append(issues, fmt.Sprintf("super admin grant failed: %v", err))
		}
	}

	raws, err := m.store.Query(ctx, store.CollectionFarmAccess,
		[]store.Filter{store.Where("userId", uid)}, nil)
	if err != nil {
		issues = append(issues, fmt.Sprintf("legacy access scan failed: %v", err))
		m.logWarnIssues(uid, issues)
		return issues
	}

	records, err := store.Decode[farm.LegacyAccess](raws)
	if err != nil {
		issues = append(issues, fmt.Sprintf("legacy access decode failed: %v", err))
		m.logWarnIssues(uid, issues)
		return issues
	}

	for _, rec := range records {
		var f farm.Farm
		if err := m.store.Get(ctx, store.CollectionFarms, rec.FarmID, &f); err != nil {
			issues = append(issues, fmt.Sprintf("legacy record %s references missing farm %s", rec.ID, rec.FarmID))
			continue
		}

		if _, err := m.roles.GrantRole(ctx, GrantForLegacyAccess(uid, rec)); err != nil {
			issues = append(issues, fmt.Sprintf("grant for legacy record %s failed: %v", rec.ID, err))
		}
	}

	m.logWarnIssues(uid, issues)
	return issues
}

func (m *Manager) logWarnIssues(uid string, issues []string) {
	for _, issue := range issues {
		m.logger.Warn("migration issue", "uid", uid, "issue", issue)
	}
}

// GrantForLegacyAccess maps a legacy single-tier access record onto the
// role model. Pure, so the mapping is testable without a store.
func GrantForLegacyAccess(uid string, rec farm.LegacyAccess) rbac.GrantRoleParam {
	var roleType rbac.RoleType
	switch rec.AccessLevel {
	case farm.LegacyAccessOwner:
		roleType = rbac.RoleFarmOwner
	case farm.LegacyAccessManager:
		roleType = rbac.RoleFarmManager
	default:
		roleType = rbac.RoleFarmViewer
	}

	return rbac.GrantRoleParam{
		UserID:    uid,
		RoleType:  roleType,
		ScopeType: rbac.ScopeFarm,
		ScopeID:   rec.FarmID,
		GrantedBy: uid,
	}
}

// GetUser loads an existing profile without the migration path.
func (m *Manager) GetUser(ctx context.Context, uid string) (User, error) {
	var user User
	if err := m.store.Get(ctx, store.CollectionUsers, uid, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to load user %s: %w", uid, err)
	}
	return normalize(user), nil
}

// UpdateLoginTracking bumps the login counter and last-login timestamp.
// Callers treat failure as non-fatal: a sign-in must not fail because the
// counter could not be written.
func (m *Manager) UpdateLoginTracking(ctx context.Context, uid string) error {
	var user User
	if err := m.store.Get(ctx, store.CollectionUsers, uid, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}

	user.LoginCount++
	user.LastLoginAt = util.Some(time.Now().UTC())
	user.UpdatedAt = time.Now().UTC()

	if err := m.store.Put(ctx, store.CollectionUsers, uid, user); err != nil {
		return fmt.Errorf("failed to update login tracking for %s: %w", uid, err)
	}
	return nil
}

// UpdatePreferences replaces the stored preference block.
func (m *Manager) UpdatePreferences(ctx context.Context, uid string, prefs Preferences) (User, error) {
	var user User
	if err := m.store.Get(ctx, store.CollectionUsers, uid, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to load user %s: %w", uid, err)
	}

	user.Preferences = prefs
	user.UpdatedAt = time.Now().UTC()

	if err := m.store.Put(ctx, store.CollectionUsers, uid, user); err != nil {
		return User{}, fmt.Errorf("failed to update preferences for %s: %w", uid, err)
	}

	m.auditor.Record(ctx, uid, "user:updated", "user", uid, map[string]any{"fields": []string{"preferences"}})
	return user, nil
}

// Deactivate suspends an account. The profile record stays; only the
// status flag changes.
func (m *Manager) Deactivate(ctx context.Context, uid, actorID string) error {
	return m.setStatus(ctx, uid, actorID, StatusSuspended, "user:deactivated")
}

// Reactivate restores a suspended account.
func (m *Manager) Reactivate(ctx context.Context, uid, actorID string) error {
	return m.setStatus(ctx, uid, actorID, StatusActive, "user:reactivated")
}

func (m *Manager) setStatus(ctx context.Context, uid, actorID, status, action string) error {
	var user User
	if err := m.store.Get(ctx, store.CollectionUsers, uid, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}

	user.AccountStatus = status
	user.UpdatedAt = time.Now().UTC()

	if err := m.store.Put(ctx, store.CollectionUsers, uid, user); err != nil {
		return fmt.Errorf("failed to set status for %s: %w", uid, err)
	}

	m.auditor.Record(ctx, actorID, action, "user", uid, map[string]any{"status": status})
	return nil
}

func displayNameFor(token identity.Token) string {
	if token.Email == "" {
		return token.UID
	}
	return token.Email
}

// normalize returns timestamps in a uniform representation regardless of
// how the backing store serialized them.
func normalize(user User) User {
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	if last, ok := user.LastLoginAt.Get(); ok {
		user.LastLoginAt = util.Some(last.UTC())
	}
	return user
}
