package database

import (
	"ticketon/internal/bookings"
	"ticketon/internal/payments"
	"ticketon/internal/sessions"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&sessions.Session{},
		&sessions.Tariff{},
		&sessions.Seat{},
		&bookings.Booking{},
		&payments.Payment{},
		&payments.TransactionLog{},
	); err != nil {
		return err
	}

	return migrateConstraints(db)
}

// migrateConstraints adds the guards AutoMigrate cannot express
func migrateConstraints(db *gorm.DB) error {
	// At most one live booking per seat; expired and cancelled rows do not count
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_one_live_per_seat
		ON bookings (session_id, seat_id)
		WHERE status IN ('PENDING', 'CONFIRMED');
	`).Error
	if err != nil {
		return err
	}

	// The expiration sweep filters on status and due time
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_bookings_pending_expiry
		ON bookings (expires_at)
		WHERE status = 'PENDING';
	`).Error
	if err != nil {
		return err
	}

	// Payme GetStatement scans by provider time
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_payments_provider_time
		ON payments (provider, provider_time);
	`).Error
	if err != nil {
		return err
	}

	return nil
}
