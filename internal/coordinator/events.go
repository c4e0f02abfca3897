package coordinator

import (
	"encoding/json"
	"time"
)

// Event type names carried on the wire to clients and across workers over
// the session pub/sub channel.
const (
	EventSeatSelected     = "seat_selected"
	EventSeatReleased     = "seat_released"
	EventSeatReserved     = "seat_reserved"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventSessionState     = "session_state"
	EventSessionUpdated   = "session_updated"
	EventError            = "error"
	EventRateLimited      = "rate_limited"

	// Sent once per connection right after the upgrade; carries the
	// connection id the client replays as resume_token on reconnect.
	EventConnected = "connected"
)

// Reasons a seat_released event carries
const (
	ReleaseReasonManual     = "manual"
	ReleaseReasonTimeout    = "timeout"
	ReleaseReasonDisconnect = "disconnect"
	ReleaseReasonCancelled  = "cancelled"
	ReleaseReasonRefund     = "refund"
)

// Event is the envelope broadcast to every connection in a session room.
// UserID identifies the actor; the fan-out layer rewrites it to "you" or
// "another_user" per recipient before delivery.
type Event struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Encode serializes the event for the pub/sub channel
func (e *Event) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeEvent parses an event off the pub/sub channel
func DecodeEvent(raw string) (*Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// NewSeatSelectedEvent announces a fresh hold on one seat
func NewSeatSelectedEvent(sessionID, seatID, userID string, expiresAt time.Time) *Event {
	return &Event{
		Type:      EventSeatSelected,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]interface{}{
			"seat_id":    seatID,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewSeatReleasedEvent announces a seat going back to available
func NewSeatReleasedEvent(sessionID, seatID, userID, reason string) *Event {
	return &Event{
		Type:      EventSeatReleased,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]interface{}{
			"seat_id": seatID,
			"reason":  reason,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewSeatsReservedEvent announces a group of seats moving to RESERVED
func NewSeatsReservedEvent(sessionID, userID string, seatIDs, bookingIDs []string, expiresAt time.Time) *Event {
	return &Event{
		Type:      EventSeatReserved,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]interface{}{
			"seat_ids":    seatIDs,
			"booking_ids": bookingIDs,
			"expires_at":  expiresAt.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewBookingConfirmedEvent announces a paid booking
func NewBookingConfirmedEvent(sessionID, seatID, userID, bookingID string) *Event {
	return &Event{
		Type:      EventBookingConfirmed,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]interface{}{
			"seat_id":    seatID,
			"booking_id": bookingID,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewBookingCancelledEvent announces a cancelled booking
func NewBookingCancelledEvent(sessionID, seatID, userID, bookingID, reason string) *Event {
	return &Event{
		Type:      EventBookingCancelled,
		SessionID: sessionID,
		UserID:    userID,
		Data: map[string]interface{}{
			"seat_id":    seatID,
			"booking_id": bookingID,
			"reason":     reason,
		},
		Timestamp: time.Now().UTC(),
	}
}
