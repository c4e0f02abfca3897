package bookings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ticketon/internal/sessions"
	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Core booking operations
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetPendingBySeat(ctx context.Context, seatID uuid.UUID) (*Booking, error)

	// Transactional catalog transitions
	ReserveSeats(ctx context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, expiresAt time.Time) ([]Booking, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*Booking, error)
	ExpireDuePending(ctx context.Context, now time.Time) ([]ExpiredBooking, error)

	// Listings
	GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error)
	GetAllBookings(ctx context.Context, query BookingListQuery) ([]Booking, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetPendingBySeat(ctx context.Context, seatID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Where("seat_id = ? AND status = ?", seatID, StatusPending).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// ReserveSeats creates one PENDING booking per seat and flips the seats to
// RESERVED in a single transaction. Row locks are acquired first; if any
// seat was flipped by a racer since the caller's availability check, the
// whole reservation aborts.
func (r *repository) ReserveSeats(ctx context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, expiresAt time.Time) ([]Booking, error) {
	var created []Booking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock the seat rows
		var seats []sessions.Seat
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Tariff").
			Where("id IN ?", seatIDs).
			Find(&seats).Error; err != nil {
			return fmt.Errorf("failed to lock seats: %w", err)
		}
		if len(seats) != len(seatIDs) {
			return apperrors.ErrSeatNotFound
		}

		// 2. Re-verify under lock
		for i := range seats {
			if seats[i].SessionID != sessionID {
				return apperrors.ErrSeatNotFound
			}
			if seats[i].Status != string(sessions.SeatAvailable) {
				return apperrors.Conflict(apperrors.CodeSeatNotAvailable, "seat is not available").
					WithSeat(seats[i].ID.String()).
					WithCurrentStatus(seats[i].Status)
			}
		}

		// 3. One PENDING booking per seat, all sharing the same expires-at
		for i := range seats {
			booking := Booking{
				SessionID:  sessionID,
				SeatID:     seats[i].ID,
				UserID:     userID,
				Status:     string(StatusPending),
				TotalPrice: seats[i].PriceOrZero(),
				ExpiresAt:  &expiresAt,
			}
			if err := tx.Create(&booking).Error; err != nil {
				return fmt.Errorf("failed to create booking: %w", err)
			}
			created = append(created, booking)
		}

		// 4. Flip seats to RESERVED
		if err := tx.Model(&sessions.Seat{}).
			Where("id IN ?", seatIDs).
			Updates(map[string]interface{}{
				"status":     sessions.SeatReserved,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("failed to reserve seats: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmBooking flips PENDING -> CONFIRMED and the seat RESERVED ->
// OCCUPIED in one transaction. Idempotent: confirming a CONFIRMED booking
// returns it unchanged.
func (r *repository) ConfirmBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrBookingNotFound
			}
			return err
		}

		switch Status(booking.Status) {
		case StatusConfirmed:
			return nil // already done, report success
		case StatusPending:
		default:
			return apperrors.Conflict(apperrors.CodeBookingNotPending, "booking cannot be confirmed").
				WithCurrentStatus(booking.Status)
		}

		now := time.Now()
		if err := tx.Model(&Booking{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       StatusConfirmed,
				"confirmed_at": now,
				"expires_at":   nil,
				"updated_at":   now,
			}).Error; err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}

		if err := tx.Model(&sessions.Seat{}).
			Where("id = ?", booking.SeatID).
			Updates(map[string]interface{}{
				"status":     sessions.SeatOccupied,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to occupy seat: %w", err)
		}

		booking.Status = string(StatusConfirmed)
		booking.ConfirmedAt = &now
		booking.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking moves any non-terminal booking to CANCELLED and returns the
// seat to AVAILABLE. Cancelling a CONFIRMED booking is allowed here because
// refunds route through it; callers gate on status first.
func (r *repository) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	var booking Booking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrBookingNotFound
			}
			return err
		}

		if booking.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeAlreadyCancelled, "booking is already finished").
				WithCurrentStatus(booking.Status)
		}

		now := time.Now()
		if err := tx.Model(&Booking{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":        StatusCancelled,
				"cancel_reason": reason,
				"expires_at":    nil,
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		if err := tx.Model(&sessions.Seat{}).
			Where("id = ?", booking.SeatID).
			Updates(map[string]interface{}{
				"status":     sessions.SeatAvailable,
				"updated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to release seat: %w", err)
		}

		booking.Status = string(StatusCancelled)
		booking.CancelReason = reason
		booking.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ExpireDuePending demotes PENDING bookings whose expires-at has passed.
// Each row is its own small transaction so one failure never stops the
// sweep, and a concurrent replica simply sees status != PENDING and skips.
func (r *repository) ExpireDuePending(ctx context.Context, now time.Time) ([]ExpiredBooking, error) {
	var due []Booking
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", StatusPending, now).
		Limit(500).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("failed to query due bookings: %w", err)
	}

	var expired []ExpiredBooking
	for i := range due {
		id := due[i].ID
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var booking Booking
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", id).
				First(&booking).Error; err != nil {
				return err
			}
			// Someone else got here first (confirm, cancel, or another replica)
			if Status(booking.Status) != StatusPending {
				return nil
			}

			if err := tx.Model(&Booking{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"status":        StatusExpired,
					"cancel_reason": "timeout",
					"expires_at":    nil,
					"updated_at":    now,
				}).Error; err != nil {
				return err
			}
			if err := tx.Model(&sessions.Seat{}).
				Where("id = ?", booking.SeatID).
				Updates(map[string]interface{}{
					"status":     sessions.SeatAvailable,
					"updated_at": now,
				}).Error; err != nil {
				return err
			}

			expired = append(expired, ExpiredBooking{
				BookingID: booking.ID,
				SeatID:    booking.SeatID,
				SessionID: booking.SessionID,
				UserID:    booking.UserID,
			})
			return nil
		})
		if err != nil {
			// Keep sweeping; this row is retried next tick
			continue
		}
	}

	return expired, nil
}

func (r *repository) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("user_id = ?", userID)
	return r.listBookings(base, query)
}

func (r *repository) GetAllBookings(ctx context.Context, query BookingListQuery) ([]Booking, int64, error) {
	base := r.db.WithContext(ctx).Model(&Booking{})
	return r.listBookings(base, query)
}

func (r *repository) listBookings(base *gorm.DB, query BookingListQuery) ([]Booking, int64, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}
	if query.SessionID != "" {
		if sessionID, err := uuid.Parse(query.SessionID); err == nil {
			base = base.Where("session_id = ?", sessionID)
		}
	}

	var totalCount int64
	if err := base.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	var list []Booking
	offset := (query.Page - 1) * query.Limit
	err := base.
		Order("created_at DESC").
		Offset(offset).
		Limit(query.Limit).
		Find(&list).Error

	return list, totalCount, err
}

// CalculateTotalPages is a listing helper shared by controllers
func CalculateTotalPages(totalCount int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalCount) / float64(limit)))
}
