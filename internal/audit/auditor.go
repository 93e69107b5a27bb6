package audit

import (
	"context"
	"log/slog"
	"time"

	"farmdash/internal/store"

	"github.com/google/uuid"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one append-only activity record. Entries are never mutated or
// deleted by this subsystem.
type Entry struct {
	ID           string         `json:"id"`
	ActorUserID  string         `json:"actorUserId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Details      map[string]any `json:"details,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Auditor appends activity entries on a best-effort basis. Record and
// RecordFailure never return an error: a business operation must not fail
// because its audit trail could not be written.
type Auditor struct {
	logger  *slog.Logger
	store   store.DocumentStore
	enabled bool
}

func NewAuditor(logger *slog.Logger, docs store.DocumentStore, enabled bool) Auditor {
	return Auditor{
		logger:  logger.With("component", "audit"),
		store:   docs,
		enabled: enabled,
	}
}

// Record appends a successful action. ActorID may be empty for actions that
// failed before authentication established an actor.
func (a *Auditor) Record(ctx context.Context, actorID, action, resourceType, resourceID string, details map[string]any) {
	a.append(ctx, actorID, action, resourceType, resourceID, details, StatusSuccess)
}

// RecordFailure appends a failed action, typically an authentication error.
func (a *Auditor) RecordFailure(ctx context.Context, actorID, action, resourceType, resourceID string, details map[string]any) {
	a.append(ctx, actorID, action, resourceType, resourceID, details, StatusFailure)
}

func (a *Auditor) append(ctx context.Context, actorID, action, resourceType, resourceID string, details map[string]any, status string) {
	if !a.enabled {
		return
	}

	entry := Entry{
		ID:           uuid.NewString(),
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}

	if err := a.store.Put(ctx, store.CollectionActivityLogs, entry.ID, entry); err != nil {
		a.logger.Error("failed to persist audit entry",
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err)
	}
}

// RecentActivity returns the newest entries recorded by an actor, for the
// dashboard activity feed. Read-only.
func (a *Auditor) RecentActivity(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	raws, err := a.store.Query(ctx, store.CollectionActivityLogs,
		[]store.Filter{store.Where("actorUserId", actorID)},
		[]store.Ordering{{Field: "createdAt", Desc: true}})
	if err != nil {
		return nil, err
	}

	entries, err := store.Decode[Entry](raws)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
