package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"farmdash/internal/audit"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/store"
)

var ErrAccountSuspended = errors.New("account: account is suspended")

// Authenticator drives the sign-up and sign-in workflows: identity
// provider first, then profile resolution, then the audit trail.
type Authenticator struct {
	logger   *slog.Logger
	provider identity.Provider
	accounts *Manager
	farms    *farm.Manager
	auditor  *audit.Auditor
}

func NewAuthenticator(logger *slog.Logger, provider identity.Provider, accounts *Manager, farms *farm.Manager, auditor *audit.Auditor) Authenticator {
	return Authenticator{
		logger:   logger.With("component", "authenticator"),
		provider: provider,
		accounts: accounts,
		farms:    farms,
		auditor:  auditor,
	}
}

type LoginParam struct {
	Email    string
	Password string
}

// Login authenticates against the identity provider and resolves the
// profile. Login tracking failures are logged, never surfaced: a user
// must not be locked out because a counter could not be written.
func (a *Authenticator) Login(ctx context.Context, param LoginParam) (User, error) {
	token, err := a.provider.SignIn(ctx, param.Email, param.Password)
	if err != nil {
		a.auditor.RecordFailure(ctx, "", "auth:login_failed", "user", "", map[string]any{
			"email":  param.Email,
			"reason": err.Error(),
		})
		return User{}, fmt.Errorf("failed to sign in: %w", err)
	}

	user, err := a.accounts.ResolveProfile(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("failed to resolve profile: %w", err)
	}

	if user.AccountStatus == StatusSuspended {
		a.auditor.RecordFailure(ctx, user.UID, "auth:login_failed", "user", user.UID, map[string]any{
			"reason": "account suspended",
		})
		return User{}, ErrAccountSuspended
	}

	if err := a.accounts.UpdateLoginTracking(ctx, user.UID); err != nil {
		a.logger.Warn("failed to update login tracking", "uid", user.UID, "error", err)
	}

	a.auditor.Record(ctx, user.UID, "auth:login", "user", user.UID, map[string]any{"email": user.Email})
	return user, nil
}

type RegisterParam struct {
	Email       string
	Password    string
	DisplayName string
	FarmName    string
}

// Register creates an identity account and its profile. When a farm name
// is supplied, the initial farm is bootstrapped in the same flow: the
// caller ends up as farm_owner of a freshly created farm.
func (a *Authenticator) Register(ctx context.Context, param RegisterParam) (User, error) {
	token, err := a.provider.SignUp(ctx, param.Email, param.Password, param.DisplayName)
	if err != nil {
		a.auditor.RecordFailure(ctx, "", "auth:signup_failed", "user", "", map[string]any{
			"email":  param.Email,
			"reason": err.Error(),
		})
		return User{}, fmt.Errorf("failed to sign up: %w", err)
	}

	user, err := a.accounts.ResolveProfile(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("failed to resolve profile: %w", err)
	}

	if param.DisplayName != "" {
		user.DisplayName = param.DisplayName
		if err := a.accounts.store.Put(ctx, store.CollectionUsers, user.UID, user); err != nil {
			a.logger.Warn("failed to store display name", "uid", user.UID, "error", err)
		}
	}

	a.auditor.Record(ctx, user.UID, "auth:signup", "user", user.UID, map[string]any{"email": user.Email})

	if param.FarmName != "" {
		if _, err := a.farms.CreateFarm(ctx, farm.CreateFarmParam{
			UserID: user.UID,
			Name:   param.FarmName,
		}); err != nil {
			return User{}, fmt.Errorf("failed to bootstrap farm: %w", err)
		}
	}

	return user, nil
}

// Logout ends the provider-side session.
func (a *Authenticator) Logout(ctx context.Context, uid string) error {
	if err := a.provider.SignOut(ctx, uid); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	a.auditor.Record(ctx, uid, "auth:logout", "user", uid, nil)
	return nil
}

// SendPasswordReset proxies to the provider. Unknown emails succeed
// silently so the endpoint cannot be used to probe for accounts.
func (a *Authenticator) SendPasswordReset(ctx context.Context, email string) error {
	if err := a.provider.SendPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("failed to send password reset: %w", err)
	}
	return nil
}
