package repository

import (
	"context"
	"sync"
	"time"

	"tenantdesk/internal/models"
)

type MemoryConfirmationRepository struct {
	confirmations sync.Map
	rateLimits    sync.Map
	ttl           time.Duration
}

func NewMemoryConfirmationRepository(ttl time.Duration) *MemoryConfirmationRepository {
	return &MemoryConfirmationRepository{
		ttl: ttl,
	}
}

type confirmationEntry struct {
	conf      *models.HideConfirmation
	expiresAt time.Time
}

func (r *MemoryConfirmationRepository) SetConfirmation(ctx context.Context, conf *models.HideConfirmation) error {
	entry := &confirmationEntry{conf: conf}
	if r.ttl > 0 {
		entry.expiresAt = time.Now().Add(r.ttl)
	}
	r.confirmations.Store(conf.BookingID, entry)
	return nil
}

func (r *MemoryConfirmationRepository) GetConfirmation(ctx context.Context, bookingID int64) (*models.HideConfirmation, error) {
	val, ok := r.confirmations.Load(bookingID)
	if !ok {
		return nil, nil
	}
	entry := val.(*confirmationEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		r.confirmations.Delete(bookingID)
		return nil, nil
	}
	return entry.conf, nil
}

func (r *MemoryConfirmationRepository) ClearConfirmation(ctx context.Context, bookingID int64) error {
	r.confirmations.Delete(bookingID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryConfirmationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
