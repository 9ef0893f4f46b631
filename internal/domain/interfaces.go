package domain

import (
	"context"
	"time"

	"tenantdesk/internal/models"
)

// BackendClient is the marketplace booking API consumed by this service. The
// backend owns all authoritative state; this service only reads snapshots and
// requests transitions.
type BackendClient interface {
	FetchActive(ctx context.Context) ([]models.Booking, error)
	FetchHistory(ctx context.Context) ([]models.Booking, error)
	CheckOut(ctx context.Context, bookingID int64) error
	HideFromOwner(ctx context.Context, bookingID int64) error
}

// ConfirmationRepository stores pending hide confirmations and per-client
// rate counters.
type ConfirmationRepository interface {
	SetConfirmation(ctx context.Context, conf *models.HideConfirmation) error
	GetConfirmation(ctx context.Context, bookingID int64) (*models.HideConfirmation, error)
	ClearConfirmation(ctx context.Context, bookingID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AuditRecorder keeps the local trail of attempted lifecycle transitions.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// CustomerService is the owner-facing customer lifecycle view-model.
type CustomerService interface {
	Load(ctx context.Context) error
	Loaded() bool
	Active() []models.CustomerRecord
	History() []models.CustomerRecord
	SearchActive(query, status string) []models.CustomerRecord
	SearchHistory(query, status string) []models.CustomerRecord
	CheckOut(ctx context.Context, bookingID int64) error
	RequestHide(ctx context.Context, bookingID int64) (string, error)
	ConfirmHide(ctx context.Context, bookingID int64, token string) error
	CancelHide(ctx context.Context, bookingID int64) error
}
