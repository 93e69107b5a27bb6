package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmdash/internal/audit"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
)

func (e *testEnv) auditEntries(t *testing.T) []audit.Entry {
	t.Helper()
	raws, err := e.docs.Query(context.Background(), store.CollectionActivityLogs, nil,
		[]store.Ordering{{Field: "createdAt"}})
	require.NoError(t, err)
	entries, err := store.Decode[audit.Entry](raws)
	require.NoError(t, err)
	return entries
}

func findEntry(entries []audit.Entry, action string) (audit.Entry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return audit.Entry{}, false
}

func TestAuthenticator_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.authenticator.Register(ctx, RegisterParam{
		Email:       "grower@example.com",
		Password:    "Orchard123",
		DisplayName: "Grower",
	})
	require.NoError(t, err)
	assert.Equal(t, "Grower", user.DisplayName)
	assert.Equal(t, "grower@example.com", user.Email)

	entries := env.auditEntries(t)
	signup, ok := findEntry(entries, "auth:signup")
	require.True(t, ok)
	assert.Equal(t, user.UID, signup.ActorUserID)
	assert.Equal(t, audit.StatusSuccess, signup.Status)

	// No farm name, no farm.
	assert.Equal(t, 0, env.docs.Count(store.CollectionFarms))
}

func TestAuthenticator_Register_WithInitialFarm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.authenticator.Register(ctx, RegisterParam{
		Email:    "grower@example.com",
		Password: "Orchard123",
		FarmName: "Sunnyside Orchard",
	})
	require.NoError(t, err)

	// The full bootstrap: profile, farm, owner grant, legacy bridge record.
	assert.Equal(t, 1, env.docs.Count(store.CollectionUsers))
	require.Equal(t, 1, env.docs.Count(store.CollectionFarms))
	assert.Equal(t, 1, env.docs.Count(store.CollectionFarmAccess))

	raws, err := env.docs.Query(ctx, store.CollectionFarms, nil, nil)
	require.NoError(t, err)
	farms, err := store.Decode[farm.Farm](raws)
	require.NoError(t, err)
	created := farms[0]
	assert.Equal(t, "Sunnyside Orchard", created.Name)
	assert.Equal(t, user.UID, created.CreatedBy)

	roleSet, err := env.roles.RoleSetForUser(ctx, user.UID)
	require.NoError(t, err)
	assert.True(t, roleSet.HasRole(rbac.RoleFarmOwner, created.ID))
	assert.Len(t, roleSet.Roles(), 1)

	entries := env.auditEntries(t)
	signupIdx, farmIdx := -1, -1
	for i, e := range entries {
		switch e.Action {
		case "auth:signup":
			signupIdx = i
		case "farm:created":
			farmIdx = i
		}
	}
	require.NotEqual(t, -1, signupIdx)
	require.NotEqual(t, -1, farmIdx)
	assert.Less(t, signupIdx, farmIdx)
}

func TestAuthenticator_Register_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)

	_, err = env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Other456"})
	assert.ErrorIs(t, err, identity.ErrEmailAlreadyInUse)

	failed, ok := findEntry(env.auditEntries(t), "auth:signup_failed")
	require.True(t, ok)
	assert.Empty(t, failed.ActorUserID)
	assert.Equal(t, audit.StatusFailure, failed.Status)
}

func TestAuthenticator_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered, err := env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)

	user, err := env.authenticator.Login(ctx, LoginParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)
	assert.Equal(t, registered.UID, user.UID)

	stored, err := env.accounts.GetUser(ctx, user.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginCount)

	login, ok := findEntry(env.auditEntries(t), "auth:login")
	require.True(t, ok)
	assert.Equal(t, user.UID, login.ActorUserID)
}

func TestAuthenticator_Login_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)

	_, err = env.authenticator.Login(ctx, LoginParam{Email: "grower@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	failed, ok := findEntry(env.auditEntries(t), "auth:login_failed")
	require.True(t, ok)
	assert.Empty(t, failed.ActorUserID)
}

func TestAuthenticator_Login_SuspendedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)
	require.NoError(t, env.accounts.Deactivate(ctx, user.UID, "admin"))

	_, err = env.authenticator.Login(ctx, LoginParam{Email: "grower@example.com", Password: "Orchard123"})
	assert.ErrorIs(t, err, ErrAccountSuspended)
}

func TestAuthenticator_Logout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.authenticator.Register(ctx, RegisterParam{Email: "grower@example.com", Password: "Orchard123"})
	require.NoError(t, err)

	require.NoError(t, env.authenticator.Logout(ctx, user.UID))

	_, ok := findEntry(env.auditEntries(t), "auth:logout")
	assert.True(t, ok)
}
