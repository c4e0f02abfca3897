package bookings

import "time"

// BookingResponse is the API view of a booking
type BookingResponse struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	SeatID       string     `json:"seat_id"`
	UserID       string     `json:"user_id"`
	Status       string     `json:"status"`
	TotalPrice   int64      `json:"total_price"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewBookingResponse maps a booking onto its API view
func NewBookingResponse(b *Booking) BookingResponse {
	return BookingResponse{
		ID:           b.ID.String(),
		SessionID:    b.SessionID.String(),
		SeatID:       b.SeatID.String(),
		UserID:       b.UserID.String(),
		Status:       b.Status,
		TotalPrice:   b.TotalPrice,
		ExpiresAt:    b.ExpiresAt,
		CancelReason: b.CancelReason,
		ConfirmedAt:  b.ConfirmedAt,
		CreatedAt:    b.CreatedAt,
	}
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

// BookingListResponse is one page of bookings
type BookingListResponse struct {
	Bookings   []BookingResponse `json:"bookings"`
	Pagination Pagination        `json:"pagination"`
}

// NewBookingListResponse maps a page of bookings onto the API view
func NewBookingListResponse(list []Booking, query BookingListQuery, totalCount int64) *BookingListResponse {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	responses := make([]BookingResponse, 0, len(list))
	for i := range list {
		responses = append(responses, NewBookingResponse(&list[i]))
	}

	return &BookingListResponse{
		Bookings: responses,
		Pagination: Pagination{
			Page:       query.Page,
			Limit:      query.Limit,
			TotalCount: totalCount,
			TotalPages: CalculateTotalPages(totalCount, query.Limit),
		},
	}
}
