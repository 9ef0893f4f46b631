package customer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"tenantdesk/internal/models"
	"tenantdesk/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchActive(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBackend) FetchHistory(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockBackend) CheckOut(ctx context.Context, bookingID int64) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

func (m *mockBackend) HideFromOwner(ctx context.Context, bookingID int64) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

func newTestService(backend *mockBackend) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(backend, repository.NewMemoryConfirmationRepository(time.Minute), nil, time.Millisecond, &logger)
}

func activeFixture() []models.Booking {
	return []models.Booking{
		{
			ID:     1,
			Status: models.StatusConfirmed,
			RenterDetails: &models.RenterDetails{
				FullName: "Dara",
				Email:    "dara@example.com",
			},
			PropertyDetails: &models.PropertyDetails{Title: "Sunny Flat", RentPrice: "450.00"},
			StartDate:       "2024-01-05",
		},
		{ID: 2, Status: models.StatusCompleted},
	}
}

func historyFixture() []models.Booking {
	return []models.Booking{
		{ID: 7, Status: models.StatusCompleted, CheckedOutAt: "2024-05-01T10:00:00Z", CompletedAt: "2024-05-01"},
	}
}

func TestServiceLoad(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("FetchActive", mock.Anything).Return(activeFixture(), nil)
		backend.On("FetchHistory", mock.Anything).Return(historyFixture(), nil)
		svc := newTestService(backend)

		assert.False(t, svc.Loaded())
		require.NoError(t, svc.Load(context.Background()))
		assert.True(t, svc.Loaded())

		active := svc.Active()
		history := svc.History()
		require.Len(t, active, 2)
		require.Len(t, history, 1)

		assert.Equal(t, "Dara", active[0].RenterName)
		assert.Equal(t, 450.0, active[0].MonthlyPayment)
		assert.Equal(t, models.LabelStillLiving, active[0].Status)
		assert.Equal(t, int64(7), history[0].ID)
		assert.Equal(t, "2024-05-01", history[0].CheckOutDate)

		// The two projections never share a booking.
		seen := make(map[int64]bool)
		for _, r := range active {
			seen[r.ID] = true
		}
		for _, r := range history {
			assert.False(t, seen[r.ID], "booking %d in both sets", r.ID)
		}
		backend.AssertExpectations(t)
	})

	t.Run("ActiveFetchFails", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("FetchActive", mock.Anything).Return(nil, errors.New("upstream down"))
		backend.On("FetchHistory", mock.Anything).Return(historyFixture(), nil)
		svc := newTestService(backend)

		err := svc.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch active rentals")

		// Neither list is published on a partial failure.
		assert.False(t, svc.Loaded())
		assert.Empty(t, svc.Active())
		assert.Empty(t, svc.History())
	})

	t.Run("HistoryFetchFails", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("FetchActive", mock.Anything).Return(activeFixture(), nil)
		backend.On("FetchHistory", mock.Anything).Return(nil, errors.New("timeout"))
		svc := newTestService(backend)

		err := svc.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch rental history")
		assert.False(t, svc.Loaded())
	})

	t.Run("ReloadReplacesWholesale", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("FetchActive", mock.Anything).Return(activeFixture(), nil).Once()
		backend.On("FetchHistory", mock.Anything).Return(historyFixture(), nil).Once()
		backend.On("FetchActive", mock.Anything).Return([]models.Booking{}, nil).Once()
		backend.On("FetchHistory", mock.Anything).Return([]models.Booking{}, nil).Once()
		svc := newTestService(backend)

		require.NoError(t, svc.Load(context.Background()))
		require.Len(t, svc.Active(), 2)

		require.NoError(t, svc.Load(context.Background()))
		assert.Empty(t, svc.Active())
		assert.Empty(t, svc.History())
	})
}

func TestServiceSearch(t *testing.T) {
	backend := new(mockBackend)
	backend.On("FetchActive", mock.Anything).Return(activeFixture(), nil)
	backend.On("FetchHistory", mock.Anything).Return(historyFixture(), nil)
	svc := newTestService(backend)
	require.NoError(t, svc.Load(context.Background()))

	assert.Len(t, svc.SearchActive("dara", ""), 1)
	assert.Empty(t, svc.SearchActive("nobody", ""))
	assert.Len(t, svc.SearchHistory("", models.LabelStillLiving), 1)
}

func TestServiceCheckOut(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("CheckOut", mock.Anything, int64(1)).Return(nil)
		backend.On("FetchActive", mock.Anything).Return([]models.Booking{}, nil)
		backend.On("FetchHistory", mock.Anything).Return(historyFixture(), nil)
		svc := newTestService(backend)

		require.NoError(t, svc.CheckOut(context.Background(), 1))

		// The reload after the settling delay is part of the operation.
		assert.True(t, svc.Loaded())
		backend.AssertCalled(t, "FetchActive", mock.Anything)
	})

	t.Run("BackendError", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("CheckOut", mock.Anything, int64(1)).Return(errors.New("conflict"))
		svc := newTestService(backend)

		err := svc.CheckOut(context.Background(), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "check out booking 1")
		backend.AssertNotCalled(t, "FetchActive", mock.Anything)
	})

	t.Run("SecondCheckOutOfSameBookingRejected", func(t *testing.T) {
		backend := new(mockBackend)
		release := make(chan struct{})
		started := make(chan struct{})
		backend.On("CheckOut", mock.Anything, int64(1)).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(nil).Once()
		backend.On("FetchActive", mock.Anything).Return([]models.Booking{}, nil)
		backend.On("FetchHistory", mock.Anything).Return([]models.Booking{}, nil)
		svc := newTestService(backend)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.CheckOut(context.Background(), 1))
		}()

		<-started
		err := svc.CheckOut(context.Background(), 1)
		assert.ErrorIs(t, err, ErrCheckOutInFlight)

		close(release)
		wg.Wait()
	})

	t.Run("DifferentBookingsOverlap", func(t *testing.T) {
		backend := new(mockBackend)
		release := make(chan struct{})
		started := make(chan struct{})
		backend.On("CheckOut", mock.Anything, int64(1)).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(nil).Once()
		backend.On("CheckOut", mock.Anything, int64(2)).Return(nil).Once()
		backend.On("FetchActive", mock.Anything).Return([]models.Booking{}, nil)
		backend.On("FetchHistory", mock.Anything).Return([]models.Booking{}, nil)
		svc := newTestService(backend)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.CheckOut(context.Background(), 1))
		}()

		<-started
		require.NoError(t, svc.CheckOut(context.Background(), 2))

		close(release)
		wg.Wait()
	})

	t.Run("ContextCancelledDuringSettle", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("CheckOut", mock.Anything, int64(1)).Return(nil)
		logger := zerolog.New(io.Discard)
		svc := NewService(backend, repository.NewMemoryConfirmationRepository(time.Minute), nil, time.Second, &logger)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := svc.CheckOut(ctx, 1)
		assert.ErrorIs(t, err, context.Canceled)
		backend.AssertNotCalled(t, "FetchActive", mock.Anything)
	})
}

func TestServiceHideFlow(t *testing.T) {
	t.Run("RequestConfirm", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("HideFromOwner", mock.Anything, int64(7)).Return(nil)
		backend.On("FetchActive", mock.Anything).Return([]models.Booking{}, nil)
		backend.On("FetchHistory", mock.Anything).Return([]models.Booking{}, nil)
		svc := newTestService(backend)

		token, err := svc.RequestHide(context.Background(), 7)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		require.NoError(t, svc.ConfirmHide(context.Background(), 7, token))
		backend.AssertCalled(t, "HideFromOwner", mock.Anything, int64(7))

		// The confirmation is single-use.
		err = svc.ConfirmHide(context.Background(), 7, token)
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
	})

	t.Run("ConfirmWithoutRequest", func(t *testing.T) {
		backend := new(mockBackend)
		svc := newTestService(backend)

		err := svc.ConfirmHide(context.Background(), 7, "whatever")
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
		backend.AssertNotCalled(t, "HideFromOwner", mock.Anything, mock.Anything)
	})

	t.Run("TokenMismatch", func(t *testing.T) {
		backend := new(mockBackend)
		svc := newTestService(backend)

		_, err := svc.RequestHide(context.Background(), 7)
		require.NoError(t, err)

		err = svc.ConfirmHide(context.Background(), 7, "wrong-token")
		assert.ErrorIs(t, err, ErrConfirmationMismatch)
		backend.AssertNotCalled(t, "HideFromOwner", mock.Anything, mock.Anything)
	})

	t.Run("Cancel", func(t *testing.T) {
		backend := new(mockBackend)
		svc := newTestService(backend)

		token, err := svc.RequestHide(context.Background(), 7)
		require.NoError(t, err)

		require.NoError(t, svc.CancelHide(context.Background(), 7))

		err = svc.ConfirmHide(context.Background(), 7, token)
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
		backend.AssertNotCalled(t, "HideFromOwner", mock.Anything, mock.Anything)
	})

	t.Run("BackendFailureKeepsRecord", func(t *testing.T) {
		backend := new(mockBackend)
		backend.On("HideFromOwner", mock.Anything, int64(7)).Return(errors.New("boom"))
		svc := newTestService(backend)

		token, err := svc.RequestHide(context.Background(), 7)
		require.NoError(t, err)

		err = svc.ConfirmHide(context.Background(), 7, token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hide booking 7")
		backend.AssertNotCalled(t, "FetchActive", mock.Anything)
	})
}
