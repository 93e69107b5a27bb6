package farm

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmdash/internal/audit"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
)

func newTestManager(t *testing.T) (Manager, *store.MemoryStore, rbac.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := store.NewMemoryStore()
	auditor := audit.NewAuditor(logger, docs, true)
	roles := rbac.NewManager(logger, docs, &auditor, nil)
	return NewManager(logger, docs, &roles, &auditor), docs, roles
}

func TestManager_CreateFarm(t *testing.T) {
	m, docs, roles := newTestManager(t)
	ctx := context.Background()

	created, err := m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "Sunnyside Orchard"})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Sunnyside Orchard", created.Name)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, "mixed", created.FarmType)
	assert.Equal(t, "UTC", created.Settings.Timezone)
	assert.Equal(t, "metric", created.Settings.Units)
	assert.Equal(t, "u1", created.CreatedBy)
	_, hasOrg := created.OrganizationID.Get()
	assert.False(t, hasOrg)

	// Creator becomes farm_owner, exactly once.
	roleSet, err := roles.RoleSetForUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, roleSet.HasRole(rbac.RoleFarmOwner, created.ID))
	assert.Len(t, roleSet.Roles(), 1)

	// Legacy bridge record for pre-migration readers.
	var legacy LegacyAccess
	require.NoError(t, docs.Get(ctx, store.CollectionFarmAccess, LegacyAccessID("u1", created.ID), &legacy))
	assert.Equal(t, LegacyAccessOwner, legacy.AccessLevel)
	assert.Equal(t, created.ID, legacy.FarmID)

	raws, err := docs.Query(ctx, store.CollectionActivityLogs, []store.Filter{store.Where("action", "farm:created")}, nil)
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestManager_CreateFarm_RequiresName(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.CreateFarm(context.Background(), CreateFarmParam{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestManager_CreateFarm_InOrganization(t *testing.T) {
	m, docs, _ := newTestManager(t)
	ctx := context.Background()

	org := map[string]any{
		"id":     "org-1",
		"limits": map[string]any{"maxFarms": 2},
	}
	require.NoError(t, docs.Put(ctx, store.CollectionOrganizations, "org-1", org))

	first, err := m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "North", OrganizationID: "org-1"})
	require.NoError(t, err)
	orgID, ok := first.OrganizationID.Get()
	require.True(t, ok)
	assert.Equal(t, "org-1", orgID)

	_, err = m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "South", OrganizationID: "org-1"})
	require.NoError(t, err)

	_, err = m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "East", OrganizationID: "org-1"})
	assert.ErrorIs(t, err, ErrFarmLimitReached)
}

func TestManager_CreateFarm_UnlimitedOrganization(t *testing.T) {
	m, docs, _ := newTestManager(t)
	ctx := context.Background()

	org := map[string]any{
		"id":     "org-1",
		"limits": map[string]any{"maxFarms": 0},
	}
	require.NoError(t, docs.Put(ctx, store.CollectionOrganizations, "org-1", org))

	for _, name := range []string{"North", "South", "East"} {
		_, err := m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: name, OrganizationID: "org-1"})
		require.NoError(t, err)
	}
}

func TestManager_GetFarm(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "Sunnyside"})
	require.NoError(t, err)

	got, err := m.GetFarm(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = m.GetFarm(ctx, "ghost")
	assert.ErrorIs(t, err, ErrFarmNotFound)
}

func TestManager_ListFarmsForOrganization(t *testing.T) {
	m, docs, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, store.CollectionOrganizations, "org-1",
		map[string]any{"id": "org-1", "limits": map[string]any{"maxFarms": 0}}))

	_, err := m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "North", OrganizationID: "org-1"})
	require.NoError(t, err)
	_, err = m.CreateFarm(ctx, CreateFarmParam{UserID: "u1", Name: "Personal"})
	require.NoError(t, err)

	farms, err := m.ListFarmsForOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, "North", farms[0].Name)
}
