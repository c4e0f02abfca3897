package sessions

// SessionStatus is the lifecycle state of a session
type SessionStatus string

const (
	SessionDraft     SessionStatus = "DRAFT"
	SessionActive    SessionStatus = "ACTIVE"
	SessionSoldOut   SessionStatus = "SOLD_OUT"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionCompleted SessionStatus = "COMPLETED"
)

// IsValid checks if the session status is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionDraft, SessionActive, SessionSoldOut, SessionCancelled, SessionCompleted:
		return true
	}
	return false
}

// AcceptsBookings reports whether new selections and reservations are allowed
func (s SessionStatus) AcceptsBookings() bool {
	return s == SessionActive
}

// String returns the string representation of SessionStatus
func (s SessionStatus) String() string {
	return string(s)
}

// SeatStatus is the catalog-level state of a seat
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatOccupied  SeatStatus = "OCCUPIED"
	SeatDisabled  SeatStatus = "DISABLED"
	SeatHidden    SeatStatus = "HIDDEN"
)

// IsValid checks if the seat status is valid
func (s SeatStatus) IsValid() bool {
	switch s {
	case SeatAvailable, SeatReserved, SeatOccupied, SeatDisabled, SeatHidden:
		return true
	}
	return false
}

// Bookable reports whether the coordinator may place a hold on the seat
func (s SeatStatus) Bookable() bool {
	return s == SeatAvailable
}

// String returns the string representation of SeatStatus
func (s SeatStatus) String() string {
	return string(s)
}
