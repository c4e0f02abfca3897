package sessions

import (
	"context"
	"errors"
	"time"

	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, activeOnly bool) ([]Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error
	ListActiveSessionIDs(ctx context.Context) ([]uuid.UUID, error)

	// Seat operations
	GetSeatByID(ctx context.Context, id uuid.UUID) (*Seat, error)
	GetSeatsByIDs(ctx context.Context, ids []uuid.UUID) ([]Seat, error)
	GetSeatsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]Seat, error)
	CreateSeats(ctx context.Context, seats []Seat) error
	UpdateSeatStatus(ctx context.Context, id uuid.UUID, status SeatStatus) error
	LockSeatsForUpdate(tx *gorm.DB, seatIDs []uuid.UUID) ([]Seat, error)

	// Tariff operations
	CreateTariff(ctx context.Context, tariff *Tariff) error
	GetTariffsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]Tariff, error)
	AssignTariff(ctx context.Context, seatIDs []uuid.UUID, tariffID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateSession(ctx context.Context, session *Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	var session Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) ListSessions(ctx context.Context, activeOnly bool) ([]Session, error) {
	var sessions []Session
	query := r.db.WithContext(ctx).Model(&Session{}).Order("starts_at ASC")
	if activeOnly {
		query = query.Where("status = ? AND is_active = true", SessionActive)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

func (r *repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error {
	return r.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) ListActiveSessionIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Session{}).
		Where("status = ? AND is_active = true", SessionActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) GetSeatByID(ctx context.Context, id uuid.UUID) (*Seat, error) {
	var seat Seat
	err := r.db.WithContext(ctx).
		Preload("Tariff").
		Where("id = ?", id).
		First(&seat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSeatNotFound
		}
		return nil, err
	}
	return &seat, nil
}

func (r *repository) GetSeatsByIDs(ctx context.Context, ids []uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Preload("Tariff").
		Where("id IN ?", ids).
		Find(&seats).Error
	return seats, err
}

func (r *repository) GetSeatsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Preload("Tariff").
		Where("session_id = ?", sessionID).
		Order("row, number").
		Find(&seats).Error
	return seats, err
}

func (r *repository) CreateSeats(ctx context.Context, seats []Seat) error {
	if len(seats) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(seats, 200).Error
}

func (r *repository) UpdateSeatStatus(ctx context.Context, id uuid.UUID, status SeatStatus) error {
	return r.db.WithContext(ctx).
		Model(&Seat{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// LockSeatsForUpdate acquires row-level write locks inside the caller's
// transaction. First step of every reservation.
func (r *repository) LockSeatsForUpdate(tx *gorm.DB, seatIDs []uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", seatIDs).
		Find(&seats).Error
	return seats, err
}

func (r *repository) CreateTariff(ctx context.Context, tariff *Tariff) error {
	return r.db.WithContext(ctx).Create(tariff).Error
}

func (r *repository) GetTariffsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]Tariff, error) {
	var tariffs []Tariff
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&tariffs).Error
	return tariffs, err
}

func (r *repository) AssignTariff(ctx context.Context, seatIDs []uuid.UUID, tariffID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&Seat{}).
		Where("id IN ?", seatIDs).
		Updates(map[string]interface{}{
			"tariff_id":  tariffID,
			"updated_at": time.Now(),
		}).Error
}
