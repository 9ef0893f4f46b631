package repository

import (
	"context"
	"sync/atomic"
	"time"

	"tenantdesk/internal/domain"
	"tenantdesk/internal/models"

	"github.com/rs/zerolog"
)

// FailoverConfirmationRepository prefers the primary store and falls back to
// the secondary when the primary errors, probing for recovery after a minute.
type FailoverConfirmationRepository struct {
	primary   domain.ConfirmationRepository
	fallback  domain.ConfirmationRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverConfirmationRepository(primary, fallback domain.ConfirmationRepository, logger *zerolog.Logger) *FailoverConfirmationRepository {
	return &FailoverConfirmationRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverConfirmationRepository) GetConfirmation(ctx context.Context, bookingID int64) (*models.HideConfirmation, error) {
	if !r.isDown.Load() {
		conf, err := r.primary.GetConfirmation(ctx, bookingID)
		if err == nil {
			return conf, nil
		}
		r.logger.Error().Err(err).Msg("Primary confirmation repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		conf, err := r.primary.GetConfirmation(ctx, bookingID)
		if err == nil {
			r.isDown.Store(false)
			return conf, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetConfirmation(ctx, bookingID)
}

func (r *FailoverConfirmationRepository) SetConfirmation(ctx context.Context, conf *models.HideConfirmation) error {
	if !r.isDown.Load() {
		err := r.primary.SetConfirmation(ctx, conf)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary confirmation repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SetConfirmation(ctx, conf)
}

func (r *FailoverConfirmationRepository) ClearConfirmation(ctx context.Context, bookingID int64) error {
	if !r.isDown.Load() {
		err := r.primary.ClearConfirmation(ctx, bookingID)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary confirmation repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.ClearConfirmation(ctx, bookingID)
}

func (r *FailoverConfirmationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary confirmation repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
