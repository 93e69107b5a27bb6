package web

import (
	"github.com/gofiber/fiber/v2"

	"farmdash/internal/rbac"
)

const (
	sessionUserKey = "uid"
	localUserID    = "userID"
)

func (h *Handler) startSession(c *fiber.Ctx, uid string) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	// Fresh session id on every privilege change.
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(sessionUserKey, uid)
	return sess.Save()
}

// RequireAuth resolves the session user and stores the uid in locals.
func (h *Handler) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := h.sessions.Get(c)
		if err != nil {
			return InternalError(c)
		}

		uid, ok := sess.Get(sessionUserKey).(string)
		if !ok || uid == "" {
			return Unauthorized(c, "authentication required")
		}

		c.Locals(localUserID, uid)
		return c.Next()
	}
}

// RequirePermission gates a route on a permission check. scopeParam names
// the route parameter carrying the scope id; empty means the check is
// scope-agnostic. Denial is a 403, never an error.
func (h *Handler) RequirePermission(perm rbac.Permission, scopeParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, ok := c.Locals(localUserID).(string)
		if !ok || uid == "" {
			return Unauthorized(c, "authentication required")
		}

		scopeID := ""
		if scopeParam != "" {
			scopeID = c.Params(scopeParam)
		}

		ctx, cancel := h.opContext(c)
		defer cancel()

		roleSet, err := h.roles.RoleSetForUser(ctx, uid)
		if err != nil {
			h.logger.Error("failed to load role set", "uid", uid, "error", err)
			return InternalError(c)
		}

		allowed := roleSet.HasPermission(perm, scopeID)
		h.telemetry.RecordPermissionCheck(ctx, string(perm), allowed)
		if !allowed {
			return Forbidden(c, "insufficient permissions")
		}

		return c.Next()
	}
}
