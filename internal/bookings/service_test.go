package bookings

import (
	"context"
	"testing"
	"time"

	"ticketon/internal/shared/apperrors"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	Repository
	bookings map[uuid.UUID]*Booking
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (f *fakeRepo) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	clone := *b
	return &clone, nil
}

func (f *fakeRepo) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	var out []Booking
	for _, b := range f.bookings {
		if b.UserID != userID {
			continue
		}
		if query.Status != "" && b.Status != query.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) GetAllBookings(ctx context.Context, query BookingListQuery) ([]Booking, int64, error) {
	var out []Booking
	for _, b := range f.bookings {
		out = append(out, *b)
	}
	return out, int64(len(out)), nil
}

type fakeCanceller struct {
	cancelled []uuid.UUID
	lastUser  string
	err       error
	result    *Booking
}

func (f *fakeCanceller) Cancel(ctx context.Context, bookingID uuid.UUID, userID string) (*Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.cancelled = append(f.cancelled, bookingID)
	f.lastUser = userID
	return f.result, nil
}

func seedBooking(repo *fakeRepo, userID uuid.UUID, status Status) *Booking {
	b := &Booking{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		SeatID:     uuid.New(),
		UserID:     userID,
		Status:     string(status),
		TotalPrice: 500000,
		CreatedAt:  time.Now(),
	}
	repo.bookings[b.ID] = b
	return b
}

func TestGetBookingEnforcesOwnership(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	b := seedBooking(repo, owner, StatusPending)
	svc := NewService(repo, &fakeCanceller{}, logger.New())

	got, err := svc.GetBooking(context.Background(), b.ID.String(), owner.String(), false)
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), got.ID)

	_, err = svc.GetBooking(context.Background(), b.ID.String(), uuid.NewString(), false)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeForbidden, appErr.Code)
}

func TestGetBookingAdminBypassesOwnership(t *testing.T) {
	repo := newFakeRepo()
	b := seedBooking(repo, uuid.New(), StatusConfirmed)
	svc := NewService(repo, &fakeCanceller{}, logger.New())

	got, err := svc.GetBooking(context.Background(), b.ID.String(), uuid.NewString(), true)
	require.NoError(t, err)
	assert.Equal(t, b.ID.String(), got.ID)
}

func TestGetBookingRejectsBadID(t *testing.T) {
	svc := NewService(newFakeRepo(), &fakeCanceller{}, logger.New())

	_, err := svc.GetBooking(context.Background(), "not-a-uuid", uuid.NewString(), false)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

func TestListUserBookingsFiltersByStatus(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	seedBooking(repo, owner, StatusPending)
	seedBooking(repo, owner, StatusConfirmed)
	seedBooking(repo, uuid.New(), StatusPending)
	svc := NewService(repo, &fakeCanceller{}, logger.New())

	page, err := svc.ListUserBookings(context.Background(), owner.String(), BookingListQuery{Status: "PENDING"})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, "PENDING", page.Bookings[0].Status)
	assert.Equal(t, 1, page.Pagination.Page)
}

func TestListUserBookingsRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newFakeRepo(), &fakeCanceller{}, logger.New())

	_, err := svc.ListUserBookings(context.Background(), uuid.NewString(), BookingListQuery{Status: "ON_HOLD"})
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}

func TestCancelBookingDelegatesToCanceller(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	b := seedBooking(repo, owner, StatusPending)
	cancelledCopy := *b
	cancelledCopy.Status = string(StatusCancelled)
	canceller := &fakeCanceller{result: &cancelledCopy}
	svc := NewService(repo, canceller, logger.New())

	got, err := svc.CancelBooking(context.Background(), b.ID.String(), owner.String())
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", got.Status)
	require.Len(t, canceller.cancelled, 1)
	assert.Equal(t, b.ID, canceller.cancelled[0])
	assert.Equal(t, owner.String(), canceller.lastUser)
}

func TestCalculateTotalPages(t *testing.T) {
	assert.Equal(t, 0, CalculateTotalPages(0, 10))
	assert.Equal(t, 1, CalculateTotalPages(10, 10))
	assert.Equal(t, 2, CalculateTotalPages(11, 10))
}
