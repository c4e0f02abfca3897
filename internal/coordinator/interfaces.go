package coordinator

import (
	"context"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/sessions"

	"github.com/google/uuid"
)

// Catalog is the slice of the session repository the coordinator reads.
// Satisfied by sessions.Repository.
type Catalog interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	GetSeatByID(ctx context.Context, id uuid.UUID) (*sessions.Seat, error)
	GetSeatsByIDs(ctx context.Context, ids []uuid.UUID) ([]sessions.Seat, error)
	GetSeatsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]sessions.Seat, error)
}

// BookingStore is the slice of the booking repository the coordinator
// drives. Satisfied by bookings.Repository.
type BookingStore interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	ReserveSeats(ctx context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, expiresAt time.Time) ([]bookings.Booking, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*bookings.Booking, error)
}

// Notifier receives booking lifecycle transitions for the downstream event
// stream. Satisfied by notifications.Service.
type Notifier interface {
	BookingsReserved(ctx context.Context, list []bookings.Booking)
	BookingConfirmed(ctx context.Context, b *bookings.Booking)
	BookingCancelled(ctx context.Context, b *bookings.Booking, reason string)
}

// HoldStore is the ephemeral key store the coordinator places holds in.
// Satisfied by holds.Store.
type HoldStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	ScanByPrefix(ctx context.Context, prefix string) ([]string, error)
	IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
	Publish(ctx context.Context, channel, message string) error
}
