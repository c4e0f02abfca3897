package payments

import (
	"context"
	"errors"
	"fmt"

	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByExternalID(ctx context.Context, provider, externalID string) (*Payment, error)
	GetPaymentByPrepareID(ctx context.Context, prepareID int64) (*Payment, error)
	GetActivePaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, payment *Payment) error
	ListPaymentsByProviderTime(ctx context.Context, provider string, from, to int64) ([]Payment, error)
	ListPayments(ctx context.Context, query PaymentListQuery) ([]Payment, int64, error)
	LogTransaction(ctx context.Context, log *TransactionLog) error
	ListTransactionsByPaymentExternalID(ctx context.Context, provider, externalID string) ([]TransactionLog, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) GetPaymentByExternalID(ctx context.Context, provider, externalID string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) GetPaymentByPrepareID(ctx context.Context, prepareID int64) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("prepare_id = ?", prepareID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// GetActivePaymentByBookingID returns the payment currently occupying the
// booking, if any. Cancelled and failed attempts do not count.
func (r *repository) GetActivePaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID, []string{
			string(StatusCreated), string(StatusPending), string(StatusPaid), string(StatusPartiallyRefunded),
		}).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) ListPaymentsByProviderTime(ctx context.Context, provider string, from, to int64) ([]Payment, error) {
	var list []Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_time >= ? AND provider_time <= ?", provider, from, to).
		Order("provider_time ASC").
		Find(&list).Error
	return list, err
}

func (r *repository) ListPayments(ctx context.Context, query PaymentListQuery) ([]Payment, int64, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	base := r.db.WithContext(ctx).Model(&Payment{})
	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}
	if query.Provider != "" {
		base = base.Where("provider = ?", query.Provider)
	}
	if query.UserID != "" {
		if userID, err := uuid.Parse(query.UserID); err == nil {
			base = base.Where("user_id = ?", userID)
		}
	}
	if query.BookingID != "" {
		if bookingID, err := uuid.Parse(query.BookingID); err == nil {
			base = base.Where("booking_id = ?", bookingID)
		}
	}

	var totalCount int64
	if err := base.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	var list []Payment
	offset := (query.Page - 1) * query.Limit
	err := base.
		Order("created_at DESC").
		Offset(offset).
		Limit(query.Limit).
		Find(&list).Error

	return list, totalCount, err
}

func (r *repository) LogTransaction(ctx context.Context, log *TransactionLog) error {
	if log.ExternalID != "" {
		key := fmt.Sprintf("%s:%s:%s", log.Provider, log.Operation, log.ExternalID)
		log.IdempotencyKey = &key
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"request", "response", "status", "error_code", "error_message"}),
		}).
		Create(log).Error
}

func (r *repository) ListTransactionsByPaymentExternalID(ctx context.Context, provider, externalID string) ([]TransactionLog, error) {
	var logs []TransactionLog
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
