package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Booking is one user's claim on exactly one seat. A seat has at most one
// booking in {PENDING, CONFIRMED} at any instant; the reservation
// transaction enforces it under row locks.
type Booking struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"session_id"`
	SeatID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"seat_id"`
	UserID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Status       string     `gorm:"type:varchar(20);check:status IN ('PENDING', 'CONFIRMED', 'CANCELLED', 'EXPIRED');default:'PENDING'" json:"status"`
	TotalPrice   int64      `gorm:"not null" json:"total_price"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"` // valid only while PENDING
	CancelReason string     `gorm:"type:varchar(32)" json:"cancel_reason,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName sets the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// IsTerminal reports whether the booking can no longer transition
func (b *Booking) IsTerminal() bool {
	return b.Status == string(StatusCancelled) || b.Status == string(StatusExpired)
}

// ExpiredBooking is one row demoted by the expiration sweep
type ExpiredBooking struct {
	BookingID uuid.UUID
	SeatID    uuid.UUID
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// BookingListQuery filters booking listings
type BookingListQuery struct {
	Status    string `form:"status"`
	SessionID string `form:"session_id"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}
