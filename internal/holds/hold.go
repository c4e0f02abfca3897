package holds

import (
	"encoding/json"
	"time"
)

// Hold is the ephemeral lock on one (session, seat). A hold without a
// BookingID is a browsing selection; once the seats are reserved the hold
// is rewritten with the booking id and a longer TTL.
type Hold struct {
	UserID       string     `json:"user_id"`
	ConnectionID string     `json:"connection_id"`
	TakenAt      time.Time  `json:"taken_at"`
	BookingID    string     `json:"booking_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IsReserved reports whether the hold is backed by a PENDING booking
func (h *Hold) IsReserved() bool {
	return h.BookingID != ""
}

// OwnedBy reports whether the hold belongs to the given user
func (h *Hold) OwnedBy(userID string) bool {
	return h.UserID == userID
}

// Encode serializes the hold for storage
func (h *Hold) Encode() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeHold deserializes a stored hold value
func DecodeHold(raw string) (*Hold, error) {
	var h Hold
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, err
	}
	return &h, nil
}
