package constants

import "fmt"

// Redis key schema. Every ephemeral key the core writes is built here so the
// expiration engine and the coordinator never disagree on layout.
//
//	seat:{sessionId}:{seatId}   hold value (JSON), TTL = selection or reservation
//	session:{sessionId}:users   presence set of connection ids
//	rate:{action}:{userId}      rate-limit counter, TTL = window
//	events:{sessionId}          pub/sub channel for cross-worker fan-out

const (
	KeyPrefixSeat    = "seat:"
	KeyPrefixSession = "session:"
	KeyPrefixRate    = "rate:"
	ChannelPrefix    = "events:"
)

// Rate-limited actions
const (
	ActionSelectSeat   = "select_seat"
	ActionReserveSeats = "reserve_seats"
)

// BuildSeatHoldKey returns the hold key for one (session, seat) pair
func BuildSeatHoldKey(sessionID, seatID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixSeat, sessionID, seatID)
}

// BuildSessionSeatPrefix returns the scan prefix covering all holds of a session
func BuildSessionSeatPrefix(sessionID string) string {
	return fmt.Sprintf("%s%s:", KeyPrefixSeat, sessionID)
}

// BuildPresenceKey returns the presence set key for a session
func BuildPresenceKey(sessionID string) string {
	return fmt.Sprintf("%s%s:users", KeyPrefixSession, sessionID)
}

// BuildRateLimitKey returns the counter key for one (action, user) pair
func BuildRateLimitKey(action, userID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixRate, action, userID)
}

// BuildSessionChannel returns the pub/sub channel name for a session
func BuildSessionChannel(sessionID string) string {
	return ChannelPrefix + sessionID
}
