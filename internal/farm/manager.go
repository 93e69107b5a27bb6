package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farmdash/internal/audit"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
	"farmdash/internal/util"
)

var (
	ErrFarmNotFound     = errors.New("farm: farm not found")
	ErrNameRequired     = errors.New("farm: name is required")
	ErrFarmLimitReached = errors.New("farm: organization farm limit reached")
)

// Legacy access levels written by the pre-role dashboard. Kept for the
// compatibility bridge in the farmAccess collection.
const (
	LegacyAccessOwner   = "owner"
	LegacyAccessManager = "manager"
	LegacyAccessViewer  = "viewer"
)

type Farm struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	OrganizationID util.Optional[string] `json:"organizationId"`
	FarmType       string                `json:"farmType"`
	Status         string                `json:"status"`
	Settings       Settings              `json:"settings"`
	Contacts       []Contact             `json:"contacts"`
	Certifications []string              `json:"certifications"`
	CreatedBy      string                `json:"createdBy"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type Settings struct {
	Timezone            string `json:"timezone"`
	Units               string `json:"units"`
	GPSEnabled          bool   `json:"gpsEnabled"`
	PhotoUploadsEnabled bool   `json:"photoUploadsEnabled"`
	RetentionDays       int    `json:"retentionDays"`
}

type Contact struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// LegacyAccess is the single-tier access record the old dashboard reads.
// New farms dual-write one of these so existing clients keep working
// during the migration window.
type LegacyAccess struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	FarmID      string    `json:"farmId"`
	AccessLevel string    `json:"accessLevel"`
	CreatedAt   time.Time `json:"createdAt"`
}

func LegacyAccessID(userID, farmID string) string {
	return userID + "_" + farmID
}

type Manager struct {
	logger  *slog.Logger
	store   store.DocumentStore
	roles   *rbac.Manager
	auditor *audit.Auditor
}

func NewManager(logger *slog.Logger, docs store.DocumentStore, roles *rbac.Manager, auditor *audit.Auditor) Manager {
	return Manager{
		logger:  logger.With("component", "farm"),
		store:   docs,
		roles:   roles,
		auditor: auditor,
	}
}

type CreateFarmParam struct {
	UserID         string
	Name           string
	OrganizationID string
	FarmType       string
	Timezone       string
}

// CreateFarm persists a farm with sensible defaults, grants the creator
// the farm_owner role, and dual-writes the legacy access record. When the
// farm belongs to an organization, the organization's farm cap is checked
// first.
func (m *Manager) CreateFarm(ctx context.Context, param CreateFarmParam) (Farm, error) {
	if param.Name == "" {
		return Farm{}, ErrNameRequired
	}

	if param.OrganizationID != "" {
		if err := m.checkFarmLimit(ctx, param.OrganizationID); err != nil {
			return Farm{}, err
		}
	}

	now := time.Now().UTC()
	farm := Farm{
		ID:       uuid.NewString(),
		Name:     param.Name,
		FarmType: defaultString(param.FarmType, "mixed"),
		Status:   "active",
		Settings: Settings{
			Timezone:            defaultString(param.Timezone, "UTC"),
			Units:               "metric",
			GPSEnabled:          true,
			PhotoUploadsEnabled: true,
			RetentionDays:       365,
		},
		Contacts:       []Contact{},
		Certifications: []string{},
		CreatedBy:      param.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if param.OrganizationID != "" {
		farm.OrganizationID = util.Some(param.OrganizationID)
	}

	if err := m.store.Put(ctx, store.CollectionFarms, farm.ID, farm); err != nil {
		return Farm{}, fmt.Errorf("failed to create farm: %w", err)
	}

	if _, err := m.roles.GrantRole(ctx, rbac.GrantRoleParam{
		UserID:    param.UserID,
		RoleType:  rbac.RoleFarmOwner,
		ScopeType: rbac.ScopeFarm,
		ScopeID:   farm.ID,
		GrantedBy: param.UserID,
	}); err != nil {
		return Farm{}, fmt.Errorf("failed to grant owner role for farm %s: %w", farm.ID, err)
	}

	legacy := LegacyAccess{
		ID:          LegacyAccessID(param.UserID, farm.ID),
		UserID:      param.UserID,
		FarmID:      farm.ID,
		AccessLevel: LegacyAccessOwner,
		CreatedAt:   now,
	}
	if err := m.store.Put(ctx, store.CollectionFarmAccess, legacy.ID, legacy); err != nil {
		// The role grant already succeeded; the bridge record only serves
		// pre-migration clients.
		m.logger.Warn("failed to write legacy access record", "farm_id", farm.ID, "error", err)
	}

	m.auditor.Record(ctx, param.UserID, "farm:created", "farm", farm.ID, map[string]any{
		"name":           farm.Name,
		"organizationId": param.OrganizationID,
	})

	return farm, nil
}

func (m *Manager) checkFarmLimit(ctx context.Context, organizationID string) error {
	var org struct {
		Limits struct {
			MaxFarms int `json:"maxFarms"`
		} `json:"limits"`
	}
	if err := m.store.Get(ctx, store.CollectionOrganizations, organizationID, &org); err != nil {
		return fmt.Errorf("failed to load organization %s: %w", organizationID, err)
	}
	if org.Limits.MaxFarms <= 0 {
		return nil
	}

	raws, err := m.store.Query(ctx, store.CollectionFarms,
		[]store.Filter{store.Where("organizationId", organizationID)}, nil)
	if err != nil {
		return fmt.Errorf("failed to count farms for organization %s: %w", organizationID, err)
	}
	if len(raws) >= org.Limits.MaxFarms {
		return ErrFarmLimitReached
	}
	return nil
}

func (m *Manager) GetFarm(ctx context.Context, id string) (Farm, error) {
	var farm Farm
	if err := m.store.Get(ctx, store.CollectionFarms, id, &farm); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Farm{}, ErrFarmNotFound
		}
		return Farm{}, fmt.Errorf("failed to load farm %s: %w", id, err)
	}
	return farm, nil
}

// ListFarmsForOrganization returns the farms attached to an organization.
func (m *Manager) ListFarmsForOrganization(ctx context.Context, organizationID string) ([]Farm, error) {
	raws, err := m.store.Query(ctx, store.CollectionFarms,
		[]store.Filter{store.Where("organizationId", organizationID)},
		[]store.Ordering{{Field: "createdAt"}})
	if err != nil {
		return nil, fmt.Errorf("failed to list farms for organization %s: %w", organizationID, err)
	}
	return store.Decode[Farm](raws)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
