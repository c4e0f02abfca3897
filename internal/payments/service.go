package payments

import (
	"context"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
)

// BookingReader is the slice of the booking repository the payment layer
// reads. Satisfied by bookings.Repository.
type BookingReader interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
}

// Coordinator is the slice of the seat coordinator the payment layer
// drives. Satisfied by coordinator.Service.
type Coordinator interface {
	Confirm(ctx context.Context, bookingID uuid.UUID, paymentID string) (*bookings.Booking, error)
	CancelByProvider(ctx context.Context, bookingID uuid.UUID, reason string) (*bookings.Booking, error)
}

// Service owns payment lifecycle outside the provider protocols: creation,
// lookups, refunds. The Payme and Click handlers drive the provider state
// machines on top of it.
type Service struct {
	repo     Repository
	bookings BookingReader
	coord    Coordinator
	cfg      *config.Config
	log      *logger.Logger
}

func NewService(repo Repository, bookingReader BookingReader, coord Coordinator, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		bookings: bookingReader,
		coord:    coord,
		cfg:      cfg,
		log:      log,
	}
}

// CreatePayment opens a payment attempt for the caller's PENDING booking.
// The declared amount must equal the booking's price; the provider webhook
// must echo the same amount again.
func (s *Service) CreatePayment(ctx context.Context, bookingID uuid.UUID, userID uuid.UUID, provider string, amount int64) (*Payment, error) {
	if provider != ProviderPayme && provider != ProviderClick {
		return nil, apperrors.Validation("unknown payment provider")
	}

	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperrors.Forbidden("booking belongs to another user")
	}
	if bookings.Status(booking.Status) != bookings.StatusPending {
		return nil, apperrors.Conflict(apperrors.CodeBookingNotPending, "booking is not awaiting payment").
			WithCurrentStatus(booking.Status)
	}
	if amount != booking.TotalPrice {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount,
			"amount does not match the booking total", 400)
	}

	if existing, err := s.repo.GetActivePaymentByBookingID(ctx, bookingID); err == nil {
		if existing.Provider == provider && Status(existing.Status) == StatusCreated {
			return existing, nil
		}
		return nil, apperrors.Conflict(apperrors.CodeConflict, "booking already has an active payment")
	}

	payment := &Payment{
		BookingID: bookingID,
		UserID:    userID,
		Provider:  provider,
		Status:    string(StatusCreated),
		Amount:    booking.TotalPrice,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.log.InfoWithContext(ctx, "Payment Created", map[string]interface{}{
		"payment_id": payment.ID.String(),
		"booking_id": bookingID.String(),
		"provider":   provider,
		"amount":     payment.Amount,
	})
	return payment, nil
}

// GetPayment returns one payment, gated on ownership unless admin
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID, userID string, isAdmin bool) (*Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && payment.UserID.String() != userID {
		return nil, apperrors.Forbidden("payment belongs to another user")
	}
	return payment, nil
}

// ListPayments pages through payments for the admin surface
func (s *Service) ListPayments(ctx context.Context, query PaymentListQuery) ([]Payment, int64, error) {
	if query.Status != "" && !Status(query.Status).IsValid() {
		return nil, 0, apperrors.Validation("unknown payment status")
	}
	return s.repo.ListPayments(ctx, query)
}

// GetTransactions returns the provider protocol log for one payment. A
// payment with no external id has not been touched by a webhook yet.
func (s *Service) GetTransactions(ctx context.Context, paymentID uuid.UUID) ([]TransactionLog, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ExternalID == "" {
		return []TransactionLog{}, nil
	}
	return s.repo.ListTransactionsByPaymentExternalID(ctx, payment.Provider, payment.ExternalID)
}

// Refund returns part or all of a paid amount. A zero amount means full
// refund of whatever is left. A refund that drains the payment cancels the
// booking and frees the seat.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, amount int64, reason string) (*Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch Status(payment.Status) {
	case StatusPaid, StatusPartiallyRefunded:
	case StatusRefunded:
		return nil, apperrors.Conflict(apperrors.CodeAlreadyRefunded, "payment is already fully refunded")
	default:
		return nil, apperrors.Conflict(apperrors.CodeConflict, "only paid payments can be refunded").
			WithCurrentStatus(payment.Status)
	}

	refundable := payment.RefundableAmount()
	if amount == 0 {
		amount = refundable
	}
	if amount < 0 || amount > refundable {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount,
			"refund amount exceeds the refundable balance", 400)
	}

	payment.RefundedAmount += amount
	if payment.RefundedAmount == payment.Amount {
		payment.Status = string(StatusRefunded)
	} else {
		payment.Status = string(StatusPartiallyRefunded)
	}
	now := time.Now()
	payment.RefundedAt = &now

	if err := s.repo.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if Status(payment.Status) == StatusRefunded {
		if _, err := s.coord.CancelByProvider(ctx, payment.BookingID, "refund"); err != nil {
			s.log.ErrorWithContext(ctx, "failed to cancel booking after refund", err, map[string]interface{}{
				"payment_id": paymentID.String(),
			})
		}
	}

	s.log.InfoWithContext(ctx, "Payment Refunded", map[string]interface{}{
		"payment_id": paymentID.String(),
		"amount":     amount,
		"status":     payment.Status,
		"reason":     reason,
	})
	return payment, nil
}
