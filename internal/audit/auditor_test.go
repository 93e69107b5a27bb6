package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmdash/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingStore struct{}

func (failingStore) Put(ctx context.Context, collection, id string, record any) error {
	return errors.New("disk on fire")
}
func (failingStore) Get(ctx context.Context, collection, id string, out any) error {
	return store.ErrNotFound
}
func (failingStore) Query(ctx context.Context, collection string, filters []store.Filter, order []store.Ordering) ([]json.RawMessage, error) {
	return nil, errors.New("disk on fire")
}
func (failingStore) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	return errors.New("disk on fire")
}

func TestAuditor_Record(t *testing.T) {
	docs := store.NewMemoryStore()
	a := NewAuditor(discardLogger(), docs, true)
	ctx := context.Background()

	a.Record(ctx, "u1", "farm:created", "farm", "f1", map[string]any{"name": "Sunnyside"})

	raws, err := docs.Query(ctx, store.CollectionActivityLogs, nil, nil)
	require.NoError(t, err)
	entries, err := store.Decode[Entry](raws)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "u1", entry.ActorUserID)
	assert.Equal(t, "farm:created", entry.Action)
	assert.Equal(t, "farm", entry.ResourceType)
	assert.Equal(t, "f1", entry.ResourceID)
	assert.Equal(t, StatusSuccess, entry.Status)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestAuditor_RecordFailure_AllowsEmptyActor(t *testing.T) {
	docs := store.NewMemoryStore()
	a := NewAuditor(discardLogger(), docs, true)
	ctx := context.Background()

	a.RecordFailure(ctx, "", "auth:login_failed", "user", "", map[string]any{"email": "x@y.z"})

	raws, err := docs.Query(ctx, store.CollectionActivityLogs, nil, nil)
	require.NoError(t, err)
	entries, err := store.Decode[Entry](raws)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ActorUserID)
	assert.Equal(t, StatusFailure, entries[0].Status)
}

func TestAuditor_PersistenceFailureIsSwallowed(t *testing.T) {
	a := NewAuditor(discardLogger(), failingStore{}, true)

	assert.NotPanics(t, func() {
		a.Record(context.Background(), "u1", "role:granted", "userRole", "r1", nil)
	})
}

func TestAuditor_DisabledWritesNothing(t *testing.T) {
	docs := store.NewMemoryStore()
	a := NewAuditor(discardLogger(), docs, false)

	a.Record(context.Background(), "u1", "farm:created", "farm", "f1", nil)

	assert.Equal(t, 0, docs.Count(store.CollectionActivityLogs))
}

func TestAuditor_RecentActivity(t *testing.T) {
	docs := store.NewMemoryStore()
	a := NewAuditor(discardLogger(), docs, true)
	ctx := context.Background()

	a.Record(ctx, "u1", "auth:login", "user", "u1", nil)
	a.Record(ctx, "u1", "farm:created", "farm", "f1", nil)
	a.Record(ctx, "u2", "auth:login", "user", "u2", nil)

	entries, err := a.RecentActivity(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "u1", e.ActorUserID)
	}

	limited, err := a.RecentActivity(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
