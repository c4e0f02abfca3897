package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session defines one scheduled event at a venue. Seats belong to exactly
// one session; they are cloned from the venue schema when the session is
// created.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VenueID   uuid.UUID `gorm:"type:uuid;index;not null" json:"venue_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	Status    string    `gorm:"type:varchar(20);check:status IN ('DRAFT', 'ACTIVE', 'SOLD_OUT', 'CANCELLED', 'COMPLETED');default:'DRAFT'" json:"status"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Seats   []Seat   `json:"seats,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE;"`
	Tariffs []Tariff `json:"tariffs,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE;"`
}

// Seat defines one bookable position. Status in the catalog is authoritative;
// short-lived selections live in the hold store on top of AVAILABLE.
type Seat struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID  `gorm:"type:uuid;index;not null" json:"session_id"`
	Row       string     `gorm:"type:varchar(16);not null" json:"row"`
	Number    string     `gorm:"type:varchar(16);not null" json:"number"`
	Section   string     `gorm:"type:varchar(64)" json:"section"`
	PosX      float64    `json:"pos_x"`
	PosY      float64    `json:"pos_y"`
	Status    string     `gorm:"type:varchar(20);check:status IN ('AVAILABLE', 'RESERVED', 'OCCUPIED', 'DISABLED', 'HIDDEN');default:'AVAILABLE'" json:"status"`
	TariffID  *uuid.UUID `gorm:"type:uuid;index" json:"tariff_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relationships
	Tariff *Tariff `json:"tariff,omitempty" gorm:"foreignKey:TariffID;constraint:OnDelete:SET NULL;"`
}

// Tariff defines a price tier scoped to one session. Prices are integer
// minor units (tiyin).
type Tariff struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null" json:"session_id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	Price     int64     `gorm:"not null" json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for Session
func (Session) TableName() string {
	return "sessions"
}

// TableName sets the table name for Seat
func (Seat) TableName() string {
	return "seats"
}

// TableName sets the table name for Tariff
func (Tariff) TableName() string {
	return "tariffs"
}

// Price returns the seat's tariff price, or 0 when unlinked
func (s *Seat) PriceOrZero() int64 {
	if s.Tariff == nil {
		return 0
	}
	return s.Tariff.Price
}
