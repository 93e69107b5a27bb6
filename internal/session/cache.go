package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"farmdash/internal/rbac"
)

const roleKeyPrefix = "roles:"

// RoleCache keeps resolved role sets in Redis for a short TTL so repeated
// permission checks within a session do not hit the document store. All
// failure modes degrade to a cache miss.
type RoleCache struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

func NewRoleCache(logger *slog.Logger, client *redis.Client, ttl time.Duration) *RoleCache {
	return &RoleCache{
		logger: logger.With("component", "session"),
		client: client,
		ttl:    ttl,
	}
}

func (c *RoleCache) GetRoles(ctx context.Context, userID string) ([]rbac.UserRole, bool) {
	payload, err := c.client.Get(ctx, roleKeyPrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("role cache read failed", "user_id", userID, "error", err)
		}
		return nil, false
	}

	var roles []rbac.UserRole
	if err := json.Unmarshal(payload, &roles); err != nil {
		c.logger.Warn("role cache entry corrupt", "user_id", userID, "error", err)
		return nil, false
	}
	return roles, true
}

func (c *RoleCache) SetRoles(ctx context.Context, userID string, roles []rbac.UserRole) {
	payload, err := json.Marshal(roles)
	if err != nil {
		c.logger.Warn("failed to encode role cache entry", "user_id", userID, "error", err)
		return
	}
	if err := c.client.Set(ctx, roleKeyPrefix+userID, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("role cache write failed", "user_id", userID, "error", err)
	}
}

func (c *RoleCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, roleKeyPrefix+userID).Err(); err != nil {
		c.logger.Warn("role cache invalidation failed", "user_id", userID, "error", err)
	}
}
