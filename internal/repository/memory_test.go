package repository

import (
	"context"
	"testing"
	"time"

	"tenantdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConfirmationRepository(t *testing.T) {
	repo := NewMemoryConfirmationRepository(time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetConfirmation", func(t *testing.T) {
		conf := &models.HideConfirmation{
			BookingID:   123,
			Token:       "tok-123",
			RequestedAt: time.Now(),
		}

		require.NoError(t, repo.SetConfirmation(ctx, conf))

		got, err := repo.GetConfirmation(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, conf.Token, got.Token)
	})

	t.Run("GetNonExistentConfirmation", func(t *testing.T) {
		got, err := repo.GetConfirmation(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearConfirmation", func(t *testing.T) {
		conf := &models.HideConfirmation{BookingID: 456, Token: "tok-456"}
		require.NoError(t, repo.SetConfirmation(ctx, conf))

		require.NoError(t, repo.ClearConfirmation(ctx, 456))

		got, _ := repo.GetConfirmation(ctx, 456)
		assert.Nil(t, got)
	})

	t.Run("ConfirmationExpires", func(t *testing.T) {
		short := NewMemoryConfirmationRepository(10 * time.Millisecond)
		conf := &models.HideConfirmation{BookingID: 789, Token: "tok-789"}
		require.NoError(t, short.SetConfirmation(ctx, conf))

		time.Sleep(20 * time.Millisecond)

		got, err := short.GetConfirmation(ctx, 789)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "client-a"
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("RateLimitWindowResets", func(t *testing.T) {
		key := "client-b"
		window := 10 * time.Millisecond

		allowed, err := repo.CheckRateLimit(ctx, key, 1, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, 1, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		time.Sleep(15 * time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, 1, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}
