package payments

import (
	"time"

	"github.com/google/uuid"
)

// Payment is one provider-side attempt to pay for a booking. Amounts are
// integer minor units (tiyin). A booking can accumulate failed attempts but
// carries at most one payment in {PENDING, PAID} at a time.
type Payment struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookingID      uuid.UUID `gorm:"type:uuid;index;not null" json:"booking_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Provider       string    `gorm:"type:varchar(16);not null" json:"provider"`
	Status         string    `gorm:"type:varchar(24);check:status IN ('CREATED', 'PENDING', 'PAID', 'CANCELLED', 'FAILED', 'REFUNDED', 'PARTIALLY_REFUNDED');default:'CREATED'" json:"status"`
	Amount         int64     `gorm:"not null" json:"amount"`
	RefundedAmount int64     `gorm:"default:0" json:"refunded_amount"`

	// Provider transaction identity. ExternalID is Payme's transaction id
	// or Click's click_trans_id; PrepareID is the monotonic integer Click
	// expects back from prepare.
	ExternalID string `gorm:"type:varchar(64);index" json:"external_id,omitempty"`
	PrepareID  int64  `gorm:"autoIncrement;uniqueIndex" json:"prepare_id,omitempty"`

	// Payme transaction state machine: 1 created, 2 performed,
	// -1 cancelled before perform, -2 cancelled after perform.
	State        int   `gorm:"default:0" json:"state,omitempty"`
	ProviderTime int64 `gorm:"default:0" json:"provider_time,omitempty"` // Payme's time param, unix ms
	CancelReason *int  `json:"cancel_reason,omitempty"`

	PerformedAt *time.Time `json:"performed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName sets the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// RefundableAmount is what is still eligible for refund
func (p *Payment) RefundableAmount() int64 {
	return p.Amount - p.RefundedAmount
}

// IsActive reports whether the payment still occupies its booking
func (p *Payment) IsActive() bool {
	switch Status(p.Status) {
	case StatusCreated, StatusPending, StatusPaid, StatusPartiallyRefunded:
		return true
	}
	return false
}

// Transaction log outcomes
const (
	TxLogSuccess = "SUCCESS"
	TxLogFailed  = "FAILED"
)

// TransactionLog is the audit trail of provider webhook traffic, request and
// response bodies verbatim plus the outcome as queryable columns.
// IdempotencyKey is provider:operation:external_id; a provider retry upserts
// the existing row instead of appending, so the log holds one row per
// distinct protocol step. Calls without an external id (statement queries,
// unparseable requests) log with a NULL key.
type TransactionLog struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Provider       string    `gorm:"type:varchar(16);index;not null" json:"provider"`
	Operation      string    `gorm:"type:varchar(32);not null" json:"operation"`
	ExternalID     string    `gorm:"type:varchar(64);index" json:"external_id"`
	IdempotencyKey *string   `gorm:"type:varchar(128);uniqueIndex" json:"idempotency_key,omitempty"`
	Status         string    `gorm:"type:varchar(16);not null;default:'SUCCESS'" json:"status"`
	ErrorCode      string    `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage   string    `gorm:"type:varchar(255)" json:"error_message,omitempty"`
	Request        string    `gorm:"type:text" json:"request"`
	Response       string    `gorm:"type:text" json:"response"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName sets the table name for TransactionLog
func (TransactionLog) TableName() string {
	return "transaction_logs"
}
