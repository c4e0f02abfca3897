package fanout

import (
	"encoding/json"

	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
)

// Client message types
const (
	MessageJoinSession  = "join_session"
	MessageLeaveSession = "leave_session"
	MessageSelectSeat   = "select_seat"
	MessageReleaseSeats = "release_seats"
	MessageReserveSeats = "reserve_seats"
)

// ClientMessage is the single inbound frame shape. Type selects the
// operation; unused fields stay empty.
type ClientMessage struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"session_id,omitempty"`
	SeatID      string   `json:"seat_id,omitempty"`
	SeatIDs     []string `json:"seat_ids,omitempty"`
	ResumeToken string   `json:"resume_token,omitempty"`
}

// DecodeClientMessage parses one inbound frame
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, apperrors.Validation("malformed message")
	}
	if msg.Type == "" {
		return nil, apperrors.Validation("message type is required")
	}
	return &msg, nil
}

// SessionUUID validates and parses the session id field
func (m *ClientMessage) SessionUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(m.SessionID)
	if err != nil {
		return uuid.Nil, apperrors.Validation("session_id must be a valid uuid")
	}
	return id, nil
}

// SeatUUID validates and parses the seat id field
func (m *ClientMessage) SeatUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(m.SeatID)
	if err != nil {
		return uuid.Nil, apperrors.Validation("seat_id must be a valid uuid")
	}
	return id, nil
}

// SeatUUIDs validates and parses the seat id list
func (m *ClientMessage) SeatUUIDs() ([]uuid.UUID, error) {
	if len(m.SeatIDs) == 0 {
		return nil, apperrors.Validation("seat_ids must not be empty")
	}
	ids := make([]uuid.UUID, 0, len(m.SeatIDs))
	for _, raw := range m.SeatIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperrors.Validation("seat_ids must be valid uuids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
