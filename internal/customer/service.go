package customer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tenantdesk/internal/domain"
	"tenantdesk/internal/events"
	"tenantdesk/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrCheckOutInFlight rejects a second checkout of the same booking while
	// the first one is still settling.
	ErrCheckOutInFlight = errors.New("checkout already in progress for this booking")

	// ErrConfirmationNotFound means hide was confirmed without (or after) a
	// pending request.
	ErrConfirmationNotFound = errors.New("no pending hide confirmation for this booking")

	// ErrConfirmationMismatch means the supplied token does not match the
	// pending request.
	ErrConfirmationMismatch = errors.New("hide confirmation token mismatch")
)

// Service owns the two in-memory customer list projections and the lifecycle
// transitions operating on them. Projections are replaced wholesale after
// every load; nothing is patched in place.
type Service struct {
	backend     domain.BackendClient
	confirms    domain.ConfirmationRepository
	eventBus    domain.EventPublisher
	settleDelay time.Duration
	logger      *zerolog.Logger

	mu      sync.RWMutex
	active  []models.CustomerRecord
	history []models.CustomerRecord
	loaded  bool

	// inflight tracks the bookings with a checkout currently being processed.
	// Checkouts of different bookings may overlap freely.
	inflight sync.Map
}

func NewService(
	backend domain.BackendClient,
	confirms domain.ConfirmationRepository,
	eventBus domain.EventPublisher,
	settleDelay time.Duration,
	logger *zerolog.Logger,
) *Service {
	if settleDelay <= 0 {
		settleDelay = models.DefaultSettleDelayMS * time.Millisecond
	}
	return &Service{
		backend:     backend,
		confirms:    confirms,
		eventBus:    eventBus,
		settleDelay: settleDelay,
		logger:      logger,
	}
}

// Load fetches both query sets concurrently, maps every booking and swaps the
// projections. Either fetch failing fails the load as a whole: partial
// display of one list without the other is not a supported state.
func (s *Service) Load(ctx context.Context) error {
	var (
		wg         sync.WaitGroup
		activeRaw  []models.Booking
		historyRaw []models.Booking
		activeErr  error
		historyErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		activeRaw, activeErr = s.backend.FetchActive(ctx)
	}()
	go func() {
		defer wg.Done()
		historyRaw, historyErr = s.backend.FetchHistory(ctx)
	}()
	wg.Wait()

	if activeErr != nil {
		s.publishLoad(models.OutcomeError, activeErr)
		return fmt.Errorf("fetch active rentals: %w", activeErr)
	}
	if historyErr != nil {
		s.publishLoad(models.OutcomeError, historyErr)
		return fmt.Errorf("fetch rental history: %w", historyErr)
	}

	active := MapBookings(activeRaw)
	history := MapBookings(historyRaw)

	s.mu.Lock()
	s.active = active
	s.history = history
	s.loaded = true
	s.mu.Unlock()

	s.publishLoad(models.OutcomeOK, nil)
	return nil
}

// Loaded reports whether at least one full load has succeeded.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Active returns a copy of the current active projection.
func (s *Service) Active() []models.CustomerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CustomerRecord(nil), s.active...)
}

// History returns a copy of the current history projection.
func (s *Service) History() []models.CustomerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CustomerRecord(nil), s.history...)
}

func (s *Service) SearchActive(query, status string) []models.CustomerRecord {
	return FilterCustomers(s.Active(), query, status)
}

func (s *Service) SearchHistory(query, status string) []models.CustomerRecord {
	return FilterCustomers(s.History(), query, status)
}

// CheckOut asks the backend to close the tenancy, waits out the settling
// delay so a racing read cannot show the record still active, then reloads
// both sets. At most one checkout per booking is in flight at a time.
func (s *Service) CheckOut(ctx context.Context, bookingID int64) error {
	if _, busy := s.inflight.LoadOrStore(bookingID, struct{}{}); busy {
		return ErrCheckOutInFlight
	}
	defer s.inflight.Delete(bookingID)

	if err := s.backend.CheckOut(ctx, bookingID); err != nil {
		s.publishTransition(events.EventCustomerCheckOutFailed, bookingID, models.ActionCheckOut, err)
		return fmt.Errorf("check out booking %d: %w", bookingID, err)
	}
	s.publishTransition(events.EventCustomerCheckedOut, bookingID, models.ActionCheckOut, nil)

	// The backend's write may not be immediately visible to a racing read.
	select {
	case <-time.After(s.settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.Load(ctx); err != nil {
		return fmt.Errorf("reload after checkout: %w", err)
	}
	return nil
}

// RequestHide opens the two-step hide flow and returns the confirmation
// token. No backend call is made until the token comes back via ConfirmHide.
func (s *Service) RequestHide(ctx context.Context, bookingID int64) (string, error) {
	conf := &models.HideConfirmation{
		BookingID:   bookingID,
		Token:       uuid.NewString(),
		RequestedAt: time.Now(),
	}
	if err := s.confirms.SetConfirmation(ctx, conf); err != nil {
		return "", fmt.Errorf("store hide confirmation: %w", err)
	}

	s.publishTransition(events.EventHideRequested, bookingID, models.ActionHideRequested, nil)
	return conf.Token, nil
}

// ConfirmHide validates the token, issues the hide and reloads both sets.
// Hiding an already-hidden booking is harmless: the record is simply absent
// from subsequent history fetches.
func (s *Service) ConfirmHide(ctx context.Context, bookingID int64, token string) error {
	conf, err := s.confirms.GetConfirmation(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("read hide confirmation: %w", err)
	}
	if conf == nil {
		return ErrConfirmationNotFound
	}
	if conf.Token != token {
		return ErrConfirmationMismatch
	}

	if err := s.confirms.ClearConfirmation(ctx, bookingID); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("clear hide confirmation")
	}

	if err := s.backend.HideFromOwner(ctx, bookingID); err != nil {
		s.publishTransition(events.EventCustomerHideFailed, bookingID, models.ActionHide, err)
		return fmt.Errorf("hide booking %d: %w", bookingID, err)
	}
	s.publishTransition(events.EventCustomerHidden, bookingID, models.ActionHide, nil)

	if err := s.Load(ctx); err != nil {
		return fmt.Errorf("reload after hide: %w", err)
	}
	return nil
}

// CancelHide drops the pending confirmation leaving all state untouched.
func (s *Service) CancelHide(ctx context.Context, bookingID int64) error {
	if err := s.confirms.ClearConfirmation(ctx, bookingID); err != nil {
		return fmt.Errorf("cancel hide confirmation: %w", err)
	}
	s.publishTransition(events.EventHideCancelled, bookingID, models.ActionHideCancelled, nil)
	return nil
}

func (s *Service) publishTransition(eventType string, bookingID int64, action string, cause error) {
	if s.eventBus == nil {
		return
	}

	payload := events.TransitionPayload{
		BookingID: bookingID,
		Action:    action,
		Outcome:   models.OutcomeOK,
	}
	if cause != nil {
		payload.Outcome = models.OutcomeError
		payload.Detail = cause.Error()
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", bookingID).Msg("publish event error")
	}
}

func (s *Service) publishLoad(outcome string, cause error) {
	if s.eventBus == nil {
		return
	}

	s.mu.RLock()
	payload := events.LoadPayload{
		Outcome:      outcome,
		ActiveCount:  len(s.active),
		HistoryCount: len(s.history),
	}
	s.mu.RUnlock()
	if cause != nil {
		payload.Detail = cause.Error()
	}

	if err := s.eventBus.PublishJSON(events.EventDashboardLoaded, payload); err != nil {
		s.logger.Error().Err(err).Msg("publish load event error")
	}
}
