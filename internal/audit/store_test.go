package audit

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"tenantdesk/internal/events"
	"tenantdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*models.AuditEntry{
		{BookingID: 1, Action: models.ActionCheckOut, Outcome: models.OutcomeOK},
		{BookingID: 2, Action: models.ActionHide, Outcome: models.OutcomeError, Detail: "backend refused"},
		{BookingID: 3, Action: models.ActionHideRequested, Outcome: models.OutcomeOK},
	}
	for _, e := range entries {
		require.NoError(t, store.Record(ctx, e))
		assert.NotZero(t, e.ID)
	}

	got, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Most recent first.
	assert.Equal(t, int64(3), got[0].BookingID)
	assert.Equal(t, int64(1), got[2].BookingID)
	assert.Equal(t, "backend refused", got[1].Detail)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestRecentLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &models.AuditEntry{
			BookingID: int64(i + 1),
			Action:    models.ActionCheckOut,
			Outcome:   models.OutcomeOK,
		}))
	}

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Non-positive limit falls back to the default.
	got, err = store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestHandleEvent(t *testing.T) {
	store := newTestStore(t)

	bus := events.NewEventBus()
	bus.Subscribe(events.EventCustomerCheckedOut, store.HandleEvent)

	err := bus.PublishJSON(events.EventCustomerCheckedOut, events.TransitionPayload{
		BookingID: 77,
		Action:    models.ActionCheckOut,
		Outcome:   models.OutcomeOK,
	})
	require.NoError(t, err)

	got, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(77), got[0].BookingID)
	assert.Equal(t, models.ActionCheckOut, got[0].Action)
}

func TestHandleEventBadPayload(t *testing.T) {
	store := newTestStore(t)

	err := store.HandleEvent(&events.Event{
		Type:      events.EventCustomerHidden,
		Payload:   []byte(`not json`),
		CreatedAt: time.Now(),
	})
	assert.Error(t, err)
}
