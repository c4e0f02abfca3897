package main

import (
	"fmt"
	"log"
	"time"

	"ticketon/internal/sessions"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Ticketon Database Seeder...")

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in reverse dependency order
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"transaction_logs",
		"payments",
		"bookings",
		"seats",
		"tariffs",
		"sessions",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit().Error
}

// SeedAll creates a few sessions with tariffs and a full seat grid each
func (s *Seeder) SeedAll() error {
	shows := []struct {
		name   string
		venue  uuid.UUID
		starts time.Time
	}{
		{"Hamlet (Evening Show)", uuid.New(), time.Now().Add(48 * time.Hour)},
		{"Symphony No. 9", uuid.New(), time.Now().Add(72 * time.Hour)},
		{"Swan Lake", uuid.New(), time.Now().Add(7 * 24 * time.Hour)},
	}

	for _, show := range shows {
		session := sessions.Session{
			VenueID:  show.venue,
			Name:     show.name,
			StartsAt: show.starts,
			EndsAt:   show.starts.Add(3 * time.Hour),
			Status:   string(sessions.SessionActive),
			IsActive: true,
		}
		if err := s.db.PostgreSQL.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session %q: %w", show.name, err)
		}

		tariffs := []sessions.Tariff{
			{SessionID: session.ID, Name: "Parterre", Price: 50000000}, // 500 000 sum in tiyin
			{SessionID: session.ID, Name: "Balcony", Price: 30000000},
			{SessionID: session.ID, Name: "Gallery", Price: 15000000},
		}
		if err := s.db.PostgreSQL.Create(&tariffs).Error; err != nil {
			return fmt.Errorf("failed to create tariffs: %w", err)
		}

		if err := s.seedSeats(session.ID, tariffs); err != nil {
			return err
		}
		fmt.Printf("  Seeded session: %s\n", show.name)
	}

	return nil
}

// seedSeats lays out a 10x20 grid: rows A-C parterre, D-G balcony, the rest
// gallery
func (s *Seeder) seedSeats(sessionID uuid.UUID, tariffs []sessions.Tariff) error {
	rows := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	var seats []sessions.Seat

	for ri, row := range rows {
		tariff := tariffs[2]
		section := "Gallery"
		switch {
		case ri < 3:
			tariff = tariffs[0]
			section = "Parterre"
		case ri < 7:
			tariff = tariffs[1]
			section = "Balcony"
		}

		for num := 1; num <= 20; num++ {
			tariffID := tariff.ID
			seats = append(seats, sessions.Seat{
				SessionID: sessionID,
				Row:       row,
				Number:    fmt.Sprintf("%d", num),
				Section:   section,
				PosX:      float64(num),
				PosY:      float64(ri),
				Status:    string(sessions.SeatAvailable),
				TariffID:  &tariffID,
			})
		}
	}

	if err := s.db.PostgreSQL.CreateInBatches(&seats, 100).Error; err != nil {
		return fmt.Errorf("failed to create seats: %w", err)
	}
	return nil
}
