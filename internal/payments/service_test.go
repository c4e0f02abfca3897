package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc     *Service
	repo    *fakeRepo
	booking *bookings.Booking
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	expiresAt := time.Now().Add(10 * time.Minute)
	booking := &bookings.Booking{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		SeatID:     uuid.New(),
		UserID:     uuid.New(),
		Status:     string(bookings.StatusPending),
		TotalPrice: 500000,
		ExpiresAt:  &expiresAt,
	}

	repo := newFakeRepo()
	reader := &fakeBookingReader{byID: map[uuid.UUID]*bookings.Booking{booking.ID: booking}}
	coord := &fakeCoordinator{bookings: reader}

	svc := NewService(repo, reader, coord, &config.Config{}, logger.New())
	return &serviceFixture{svc: svc, repo: repo, booking: booking}
}

func TestCreatePayment(t *testing.T) {
	f := newServiceFixture(t)

	payment, err := f.svc.CreatePayment(context.Background(), f.booking.ID, f.booking.UserID, ProviderPayme, 500000)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCreated), payment.Status)
	assert.Equal(t, int64(500000), payment.Amount)
}

func TestCreatePaymentRejectsAmountMismatch(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreatePayment(context.Background(), f.booking.ID, f.booking.UserID, ProviderPayme, 400000)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeInvalidAmount, appErr.Code)

	// Nothing is persisted on a mismatch
	_, err = f.repo.GetActivePaymentByBookingID(context.Background(), f.booking.ID)
	assert.Error(t, err)
}

func TestCreatePaymentRejectsForeignBooking(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreatePayment(context.Background(), f.booking.ID, uuid.New(), ProviderPayme, 500000)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeForbidden, appErr.Code)
}

func TestCreatePaymentReturnsExistingAttempt(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreatePayment(ctx, f.booking.ID, f.booking.UserID, ProviderClick, 500000)
	require.NoError(t, err)

	second, err := f.svc.CreatePayment(ctx, f.booking.ID, f.booking.UserID, ProviderClick, 500000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
