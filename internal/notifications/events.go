package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BookingEventType classifies booking lifecycle events on the stream
type BookingEventType string

const (
	BookingEventReserved  BookingEventType = "booking.reserved"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
	BookingEventRefunded  BookingEventType = "booking.refunded"
)

// BookingEvent is one record on the booking-events topic. Downstream
// consumers (email, analytics) key off Type; partitioning is by user so one
// user's events stay ordered.
type BookingEvent struct {
	ID        uuid.UUID        `json:"id"`
	Type      BookingEventType `json:"type"`
	BookingID uuid.UUID        `json:"booking_id"`
	SessionID uuid.UUID        `json:"session_id"`
	SeatID    uuid.UUID        `json:"seat_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Amount    int64            `json:"amount,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewBookingEvent builds an event with identity and timestamp filled in
func NewBookingEvent(eventType BookingEventType, bookingID, sessionID, seatID, userID uuid.UUID) *BookingEvent {
	return &BookingEvent{
		ID:        uuid.New(),
		Type:      eventType,
		BookingID: bookingID,
		SessionID: sessionID,
		SeatID:    seatID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

// ToJSON serializes the event for the wire
func (e *BookingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// GetPartitionKey returns the Kafka partition key
func (e *BookingEvent) GetPartitionKey() string {
	return e.UserID.String()
}
