package bookings

import (
	"context"

	"ticketon/internal/shared/apperrors"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
)

// Canceller cancels a booking on the caller's behalf. Satisfied by the
// seat coordinator, which also frees the hold and notifies the room.
type Canceller interface {
	Cancel(ctx context.Context, bookingID uuid.UUID, userID string) (*Booking, error)
}

type Service interface {
	GetBooking(ctx context.Context, id string, userID string, isAdmin bool) (*BookingResponse, error)
	ListUserBookings(ctx context.Context, userID string, query BookingListQuery) (*BookingListResponse, error)
	ListAllBookings(ctx context.Context, query BookingListQuery) (*BookingListResponse, error)
	CancelBooking(ctx context.Context, id string, userID string) (*BookingResponse, error)
}

type service struct {
	repo      Repository
	canceller Canceller
	log       *logger.Logger
}

func NewService(repo Repository, canceller Canceller, log *logger.Logger) Service {
	return &service{
		repo:      repo,
		canceller: canceller,
		log:       log,
	}
}

func (s *service) GetBooking(ctx context.Context, id string, userID string, isAdmin bool) (*BookingResponse, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.Validation("booking ID must be a valid uuid")
	}

	booking, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.UserID.String() != userID {
		return nil, apperrors.Forbidden("booking belongs to another user")
	}

	resp := NewBookingResponse(booking)
	return &resp, nil
}

func (s *service) ListUserBookings(ctx context.Context, userID string, query BookingListQuery) (*BookingListResponse, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid user id in token")
	}
	if query.Status != "" && !Status(query.Status).IsValid() {
		return nil, apperrors.Validation("unknown booking status")
	}

	list, totalCount, err := s.repo.GetUserBookings(ctx, id, query)
	if err != nil {
		return nil, err
	}
	return NewBookingListResponse(list, query, totalCount), nil
}

func (s *service) ListAllBookings(ctx context.Context, query BookingListQuery) (*BookingListResponse, error) {
	if query.Status != "" && !Status(query.Status).IsValid() {
		return nil, apperrors.Validation("unknown booking status")
	}

	list, totalCount, err := s.repo.GetAllBookings(ctx, query)
	if err != nil {
		return nil, err
	}
	return NewBookingListResponse(list, query, totalCount), nil
}

func (s *service) CancelBooking(ctx context.Context, id string, userID string) (*BookingResponse, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.Validation("booking ID must be a valid uuid")
	}

	cancelled, err := s.canceller.Cancel(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}

	resp := NewBookingResponse(cancelled)
	return &resp, nil
}
