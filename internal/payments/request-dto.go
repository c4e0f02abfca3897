package payments

// CreatePaymentRequest opens a payment attempt for a booking. Amount is in
// tiyin and must match the booking total exactly.
type CreatePaymentRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Provider  string `json:"provider" binding:"required,oneof=PAYME CLICK"`
}

// RefundRequest refunds part or all of a paid payment. Amount is in tiyin;
// zero or omitted means full refund.
type RefundRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid"`
	Amount    int64  `json:"amount" binding:"gte=0"`
	Reason    string `json:"reason"`
}

// PaymentListQuery filters the admin payment listing
type PaymentListQuery struct {
	Status    string `form:"status"`
	Provider  string `form:"provider"`
	UserID    string `form:"user_id"`
	BookingID string `form:"booking_id"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}
