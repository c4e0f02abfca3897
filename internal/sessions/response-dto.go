package sessions

import "time"

// SessionResponse is the public view of a session
type SessionResponse struct {
	ID        string    `json:"id"`
	VenueID   string    `json:"venue_id"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
	SeatCount int       `json:"seat_count,omitempty"`
}

// SeatResponse is the public view of one seat
type SeatResponse struct {
	ID      string  `json:"id"`
	Row     string  `json:"row"`
	Number  string  `json:"number"`
	Section string  `json:"section,omitempty"`
	PosX    float64 `json:"pos_x"`
	PosY    float64 `json:"pos_y"`
	Status  string  `json:"status"`
	Price   int64   `json:"price"`
}

// NewSeatResponse maps a catalog seat to its public view
func NewSeatResponse(seat *Seat) SeatResponse {
	return SeatResponse{
		ID:      seat.ID.String(),
		Row:     seat.Row,
		Number:  seat.Number,
		Section: seat.Section,
		PosX:    seat.PosX,
		PosY:    seat.PosY,
		Status:  seat.Status,
		Price:   seat.PriceOrZero(),
	}
}
