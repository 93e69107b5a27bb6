package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"farmdash/internal/account"
	"farmdash/internal/audit"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/monitoring"
	"farmdash/internal/organisation"
	"farmdash/internal/rbac"
	"farmdash/internal/util"
	"farmdash/internal/validator"
)

// Handler exposes the managers over a thin JSON API. All domain logic
// lives in the managers; handlers only translate HTTP.
type Handler struct {
	logger        *slog.Logger
	sessions      *session.Store
	validator     *validator.Validator
	authenticator *account.Authenticator
	accounts      *account.Manager
	roles         *rbac.Manager
	organisations *organisation.Manager
	farms         *farm.Manager
	auditor       *audit.Auditor
	telemetry     monitoring.Telemetry
	timeout       time.Duration
}

const defaultOperationTimeout = 5 * time.Second

func NewHandler(
	logger *slog.Logger,
	sessions *session.Store,
	v *validator.Validator,
	authenticator *account.Authenticator,
	accounts *account.Manager,
	roles *rbac.Manager,
	organisations *organisation.Manager,
	farms *farm.Manager,
	auditor *audit.Auditor,
	telemetry monitoring.Telemetry,
	operationTimeout time.Duration,
) *Handler {
	if operationTimeout <= 0 {
		operationTimeout = defaultOperationTimeout
	}
	return &Handler{
		logger:        logger.With("component", "web"),
		sessions:      sessions,
		validator:     v,
		authenticator: authenticator,
		accounts:      accounts,
		roles:         roles,
		organisations: organisations,
		farms:         farms,
		auditor:       auditor,
		telemetry:     telemetry,
		timeout:       operationTimeout,
	}
}

// opContext bounds a request's store and identity work so a stalled backend
// cannot hold the request open indefinitely. A deadline hit surfaces as an
// error from the manager, which fails the request closed.
func (h *Handler) opContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), h.timeout)
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email,no_disposable_email"`
	Password    string `json:"password" validate:"required,password_strength"`
	DisplayName string `json:"displayName" validate:"max=100"`
	FarmName    string `json:"farmName" validate:"max=100"`
}

func (h *Handler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	user, err := h.authenticator.Register(ctx, account.RegisterParam{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		FarmName:    req.FarmName,
	})
	if err != nil {
		h.telemetry.RecordUserRegistration(ctx, req.Email, false)
		if errors.Is(err, identity.ErrEmailAlreadyInUse) {
			return Conflict(c, "email already in use")
		}
		h.logger.Error("sign-up failed", "error", err)
		return InternalError(c)
	}
	h.telemetry.RecordUserRegistration(ctx, req.Email, true)

	if err := h.startSession(c, user.UID); err != nil {
		h.logger.Error("failed to start session", "error", err)
		return InternalError(c)
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	user, err := h.authenticator.Login(ctx, account.LoginParam{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			return Unauthorized(c, "invalid credentials")
		case errors.Is(err, identity.ErrEmailNotVerified):
			return Unauthorized(c, "email not verified")
		case errors.Is(err, account.ErrAccountSuspended):
			return Forbidden(c, "account suspended")
		}
		h.logger.Error("sign-in failed", "error", err)
		return InternalError(c)
	}

	if err := h.startSession(c, user.UID); err != nil {
		h.logger.Error("failed to start session", "error", err)
		return InternalError(c)
	}

	return c.JSON(user)
}

func (h *Handler) SignOut(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return InternalError(c)
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	if uid, ok := sess.Get(sessionUserKey).(string); ok && uid != "" {
		if err := h.authenticator.Logout(ctx, uid); err != nil {
			h.logger.Warn("sign-out failed", "uid", uid, "error", err)
		}
	}

	if err := sess.Destroy(); err != nil {
		return InternalError(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	if err := h.authenticator.SendPasswordReset(ctx, req.Email); err != nil {
		h.logger.Error("password reset failed", "error", err)
		return InternalError(c)
	}
	// Always 202: the endpoint must not reveal whether the email exists.
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handler) Me(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)

	ctx, cancel := h.opContext(c)
	defer cancel()

	user, err := h.accounts.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			return NotFound(c, "user not found")
		}
		h.logger.Error("failed to load profile", "uid", uid, "error", err)
		return InternalError(c)
	}
	return c.JSON(user)
}

func (h *Handler) MyPermissions(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)
	scopeID := c.Query("scopeId")

	ctx, cancel := h.opContext(c)
	defer cancel()

	roleSet, err := h.roles.RoleSetForUser(ctx, uid)
	if err != nil {
		h.logger.Error("failed to load role set", "uid", uid, "error", err)
		return InternalError(c)
	}

	perms := roleSet.EffectivePermissions()
	granted := make([]rbac.Permission, 0, len(perms))
	for _, perm := range perms {
		if roleSet.HasPermission(perm, scopeID) {
			granted = append(granted, perm)
		}
	}

	return c.JSON(fiber.Map{
		"userId":       uid,
		"scopeId":      scopeID,
		"isSuperAdmin": roleSet.IsSuperAdmin(),
		"permissions":  granted,
		"roles":        roleSet.Roles(),
	})
}

func (h *Handler) MyActivity(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)

	limit := c.QueryInt("limit", 20)

	ctx, cancel := h.opContext(c)
	defer cancel()

	entries, err := h.auditor.RecentActivity(ctx, uid, limit)
	if err != nil {
		h.logger.Error("failed to load activity", "uid", uid, "error", err)
		return InternalError(c)
	}
	return c.JSON(fiber.Map{"items": entries})
}

type createOrganisationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Tier string `json:"tier" validate:"omitempty,oneof=free pro enterprise"`
}

func (h *Handler) CreateOrganisation(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)

	var req createOrganisationRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	org, err := h.organisations.CreateOrganisation(ctx, organisation.CreateOrganisationParam{
		OwnerID: uid,
		Name:    req.Name,
		Tier:    organisation.Tier(req.Tier),
	})
	if err != nil {
		h.logger.Error("failed to create organisation", "uid", uid, "error", err)
		return InternalError(c)
	}
	return c.Status(fiber.StatusCreated).JSON(org)
}

type changeSubscriptionRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free pro enterprise"`
}

func (h *Handler) ChangeSubscription(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)
	orgID := c.Params("id")

	var req changeSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	// The actor's email seeds the Stripe customer on a first upgrade.
	actor, err := h.accounts.GetUser(ctx, uid)
	if err != nil {
		h.logger.Error("failed to load profile", "uid", uid, "error", err)
		return InternalError(c)
	}

	org, err := h.organisations.ChangeSubscription(ctx, organisation.ChangeSubscriptionParam{
		OrganisationID: orgID,
		NewTier:        organisation.Tier(req.Tier),
		ActorID:        uid,
		BillingEmail:   actor.Email,
	})
	if err != nil {
		if errors.Is(err, organisation.ErrOrganisationNotFound) {
			return NotFound(c, "organisation not found")
		}
		h.logger.Error("failed to change subscription", "organisation_id", orgID, "error", err)
		return InternalError(c)
	}
	return c.JSON(org)
}

type createFarmRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	OrganizationID string `json:"organizationId"`
	FarmType       string `json:"farmType" validate:"max=50"`
	Timezone       string `json:"timezone" validate:"max=50"`
}

func (h *Handler) CreateFarm(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)

	var req createFarmRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	created, err := h.farms.CreateFarm(ctx, farm.CreateFarmParam{
		UserID:         uid,
		Name:           req.Name,
		OrganizationID: req.OrganizationID,
		FarmType:       req.FarmType,
		Timezone:       req.Timezone,
	})
	if err != nil {
		if errors.Is(err, farm.ErrFarmLimitReached) {
			return Forbidden(c, "organization farm limit reached")
		}
		h.logger.Error("failed to create farm", "uid", uid, "error", err)
		return InternalError(c)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *Handler) ListFarmMembers(c *fiber.Ctx) error {
	farmID := c.Params("id")

	ctx, cancel := h.opContext(c)
	defer cancel()

	members, err := h.roles.ListFarmMembers(ctx, farmID)
	if err != nil {
		h.logger.Error("failed to list farm members", "farm_id", farmID, "error", err)
		return InternalError(c)
	}
	return c.JSON(fiber.Map{"items": members})
}

type grantRoleRequest struct {
	UserID    string     `json:"userId" validate:"required"`
	RoleType  string     `json:"roleType" validate:"required,role_type"`
	ScopeType string     `json:"scopeType" validate:"required,scope_type"`
	ScopeID   string     `json:"scopeId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *Handler) GrantRole(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)

	var req grantRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return BadRequest(c, err.Error())
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	// The scope id travels in the body, so the check happens here rather
	// than in route middleware.
	roleSet, err := h.roles.RoleSetForUser(ctx, uid)
	if err != nil {
		h.logger.Error("failed to load role set", "uid", uid, "error", err)
		return InternalError(c)
	}
	allowed := roleSet.HasPermission(rbac.PermissionRoleGrant, req.ScopeID)
	h.telemetry.RecordPermissionCheck(ctx, string(rbac.PermissionRoleGrant), allowed)
	if !allowed {
		return Forbidden(c, "insufficient permissions")
	}

	param := rbac.GrantRoleParam{
		UserID:    req.UserID,
		RoleType:  rbac.RoleType(req.RoleType),
		ScopeType: rbac.ScopeType(req.ScopeType),
		ScopeID:   req.ScopeID,
		GrantedBy: uid,
	}
	if req.ExpiresAt != nil {
		param.ExpiresAt = util.Some(req.ExpiresAt.UTC())
	}

	role, err := h.roles.GrantRole(ctx, param)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrScopeIDRequired), errors.Is(err, rbac.ErrScopeIDForbidden):
			return BadRequest(c, err.Error())
		}
		h.logger.Error("failed to grant role", "error", err)
		return InternalError(c)
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

func (h *Handler) RevokeRole(c *fiber.Ctx) error {
	uid := c.Locals(localUserID).(string)
	roleID := c.Params("id")

	ctx, cancel := h.opContext(c)
	defer cancel()

	role, err := h.roles.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return NotFound(c, "role not found")
		}
		h.logger.Error("failed to load role", "role_id", roleID, "error", err)
		return InternalError(c)
	}

	roleSet, err := h.roles.RoleSetForUser(ctx, uid)
	if err != nil {
		h.logger.Error("failed to load role set", "uid", uid, "error", err)
		return InternalError(c)
	}
	allowed := roleSet.HasPermission(rbac.PermissionRoleRevoke, role.ScopeID)
	h.telemetry.RecordPermissionCheck(ctx, string(rbac.PermissionRoleRevoke), allowed)
	if !allowed {
		return Forbidden(c, "insufficient permissions")
	}

	if err := h.roles.RevokeRole(ctx, roleID, uid); err != nil {
		h.logger.Error("failed to revoke role", "role_id", roleID, "error", err)
		return InternalError(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
