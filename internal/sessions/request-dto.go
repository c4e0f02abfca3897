package sessions

import "time"

// CreateSessionRequest creates a session and clones its seat map from the
// venue schema carried in the request body.
type CreateSessionRequest struct {
	VenueID  string            `json:"venue_id" binding:"required,uuid"`
	Name     string            `json:"name" binding:"required,min=1,max=255"`
	StartsAt time.Time         `json:"starts_at" binding:"required"`
	EndsAt   time.Time         `json:"ends_at" binding:"required"`
	Seats    []SeatSchemaEntry `json:"seats" binding:"required,min=1,dive"`
	Tariffs  []TariffEntry     `json:"tariffs" binding:"omitempty,dive"`
}

// SeatSchemaEntry is one seat of the venue schema
type SeatSchemaEntry struct {
	Row     string  `json:"row" binding:"required,max=16"`
	Number  string  `json:"number" binding:"required,max=16"`
	Section string  `json:"section" binding:"max=64"`
	PosX    float64 `json:"pos_x"`
	PosY    float64 `json:"pos_y"`
	Tariff  string  `json:"tariff" binding:"max=64"` // tariff name, resolved after tariff creation
}

// TariffEntry is one price tier of the session
type TariffEntry struct {
	Name  string `json:"name" binding:"required,max=64"`
	Price int64  `json:"price" binding:"required,min=0"`
}

// UpdateSessionStatusRequest drives the session lifecycle
type UpdateSessionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=DRAFT ACTIVE SOLD_OUT CANCELLED COMPLETED"`
}

// UpdateSeatStatusRequest sets administrator-only seat states
type UpdateSeatStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=AVAILABLE DISABLED HIDDEN"`
}
