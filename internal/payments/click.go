package payments

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Click SHOP-API error codes
const (
	clickOK                  = 0
	clickErrSignCheck        = -1
	clickErrIncorrectAmount  = -2
	clickErrActionNotFound   = -3
	clickErrAlreadyPaid      = -4
	clickErrOrderNotFound    = -5
	clickErrTransactionGone  = -6
	clickErrFailedToUpdate   = -7
	clickErrBadRequest       = -8
	clickErrTransactionAbort = -9
)

const (
	clickActionPrepare  = "0"
	clickActionComplete = "1"
)

// clickRequest carries the raw form fields. Values stay strings so the
// signature is computed over exactly what Click sent.
type clickRequest struct {
	ClickTransID      string
	ServiceID         string
	ClickPaydocID     string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

type clickResponse struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// ClickHandler implements the merchant side of the Click SHOP-API:
// prepare reserves a payment row, complete settles it.
type ClickHandler struct {
	repo     Repository
	bookings BookingReader
	coord    Coordinator
	cfg      *config.Config
	log      *logger.Logger
}

func NewClickHandler(repo Repository, bookingReader BookingReader, coord Coordinator, cfg *config.Config, log *logger.Logger) *ClickHandler {
	return &ClickHandler{
		repo:     repo,
		bookings: bookingReader,
		coord:    coord,
		cfg:      cfg,
		log:      log,
	}
}

func bindClickRequest(c *gin.Context) *clickRequest {
	return &clickRequest{
		ClickTransID:      c.PostForm("click_trans_id"),
		ServiceID:         c.PostForm("service_id"),
		ClickPaydocID:     c.PostForm("click_paydoc_id"),
		MerchantTransID:   c.PostForm("merchant_trans_id"),
		MerchantPrepareID: c.PostForm("merchant_prepare_id"),
		Amount:            c.PostForm("amount"),
		Action:            c.PostForm("action"),
		Error:             c.PostForm("error"),
		ErrorNote:         c.PostForm("error_note"),
		SignTime:          c.PostForm("sign_time"),
		SignString:        c.PostForm("sign_string"),
	}
}

// signature is md5 over the concatenated raw fields; complete includes the
// prepare id between merchant_trans_id and amount.
func clickSignature(req *clickRequest, secretKey string, withPrepareID bool) string {
	payload := req.ClickTransID + req.ServiceID + secretKey + req.MerchantTransID
	if withPrepareID {
		payload += req.MerchantPrepareID
	}
	payload += req.Amount + req.Action + req.SignTime
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// amountMatches compares Click's decimal sum against tiyin with a half-
// tiyin tolerance for float formatting.
func amountMatches(rawAmount string, tiyin int64) bool {
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil {
		return false
	}
	diff := amount*100 - float64(tiyin)
	return diff >= -1 && diff <= 1
}

// Prepare handles POST /payments/click/prepare
func (h *ClickHandler) Prepare(c *gin.Context) {
	req := bindClickRequest(c)
	ctx := c.Request.Context()
	h.log.LogWebhook(ctx, ProviderClick, "prepare", req.ClickTransID)

	resp := &clickResponse{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
	}

	if req.Action != clickActionPrepare {
		h.finish(c, req, "prepare", resp, clickErrActionNotFound, "action not found")
		return
	}
	if clickSignature(req, h.cfg.Click.SecretKey, false) != req.SignString {
		h.log.LogAuthFailure(ctx, "click sign check failed", c.ClientIP())
		h.finish(c, req, "prepare", resp, clickErrSignCheck, "SIGN CHECK FAILED")
		return
	}

	booking, code, note := h.payableBooking(ctx, req.MerchantTransID)
	if code != clickOK {
		h.finish(c, req, "prepare", resp, code, note)
		return
	}
	if !amountMatches(req.Amount, booking.TotalPrice) {
		h.finish(c, req, "prepare", resp, clickErrIncorrectAmount, "incorrect amount")
		return
	}

	// A retried prepare for the same Click transaction returns the same
	// prepare id.
	if existing, err := h.repo.GetPaymentByExternalID(ctx, ProviderClick, req.ClickTransID); err == nil {
		resp.MerchantPrepareID = existing.PrepareID
		h.finish(c, req, "prepare", resp, clickOK, "success")
		return
	}

	if active, err := h.repo.GetActivePaymentByBookingID(ctx, booking.ID); err == nil {
		if Status(active.Status) == StatusPaid {
			h.finish(c, req, "prepare", resp, clickErrAlreadyPaid, "already paid")
			return
		}
		h.finish(c, req, "prepare", resp, clickErrOrderNotFound, "booking is occupied by another transaction")
		return
	}

	payment := &Payment{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		Provider:   ProviderClick,
		Status:     string(StatusPending),
		Amount:     booking.TotalPrice,
		ExternalID: req.ClickTransID,
	}
	if err := h.repo.CreatePayment(ctx, payment); err != nil {
		h.finish(c, req, "prepare", resp, clickErrFailedToUpdate, "failed to create payment")
		return
	}

	resp.MerchantPrepareID = payment.PrepareID
	h.finish(c, req, "prepare", resp, clickOK, "success")
}

// Complete handles POST /payments/click/complete
func (h *ClickHandler) Complete(c *gin.Context) {
	req := bindClickRequest(c)
	ctx := c.Request.Context()
	h.log.LogWebhook(ctx, ProviderClick, "complete", req.ClickTransID)

	resp := &clickResponse{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
	}

	if req.Action != clickActionComplete {
		h.finish(c, req, "complete", resp, clickErrActionNotFound, "action not found")
		return
	}
	if clickSignature(req, h.cfg.Click.SecretKey, true) != req.SignString {
		h.log.LogAuthFailure(ctx, "click sign check failed", c.ClientIP())
		h.finish(c, req, "complete", resp, clickErrSignCheck, "SIGN CHECK FAILED")
		return
	}

	prepareID, err := strconv.ParseInt(req.MerchantPrepareID, 10, 64)
	if err != nil {
		h.finish(c, req, "complete", resp, clickErrBadRequest, "invalid merchant_prepare_id")
		return
	}
	payment, err := h.repo.GetPaymentByPrepareID(ctx, prepareID)
	if err != nil {
		h.finish(c, req, "complete", resp, clickErrTransactionGone, "transaction not found")
		return
	}
	if payment.BookingID.String() != req.MerchantTransID {
		h.finish(c, req, "complete", resp, clickErrOrderNotFound, "booking mismatch")
		return
	}

	resp.MerchantConfirmID = payment.PrepareID

	switch Status(payment.Status) {
	case StatusPaid:
		// Idempotent repeat of a settled complete
		h.finish(c, req, "complete", resp, clickOK, "success")
		return
	case StatusCancelled, StatusFailed:
		h.finish(c, req, "complete", resp, clickErrTransactionAbort, "transaction cancelled")
		return
	case StatusPending:
	default:
		h.finish(c, req, "complete", resp, clickErrTransactionGone, "transaction not found")
		return
	}

	// Click reports its own upstream failure in the error field; the booking
	// goes down with the payment so the seat frees up immediately.
	if clickError, err := strconv.Atoi(req.Error); err == nil && clickError < 0 {
		h.abortPayment(ctx, payment)
		if _, err := h.coord.CancelByProvider(ctx, payment.BookingID, "payment_failed"); err != nil {
			h.log.ErrorWithContext(ctx, "cancel after click error failed", err, map[string]interface{}{
				"payment_id": payment.ID.String(),
			})
		}
		h.finish(c, req, "complete", resp, clickErrTransactionAbort, "transaction cancelled")
		return
	}

	if !amountMatches(req.Amount, payment.Amount) {
		h.finish(c, req, "complete", resp, clickErrIncorrectAmount, "incorrect amount")
		return
	}

	if _, err := h.coord.Confirm(ctx, payment.BookingID, payment.ID.String()); err != nil {
		h.abortPayment(ctx, payment)
		h.finish(c, req, "complete", resp, clickErrTransactionAbort, "booking can no longer be confirmed")
		return
	}

	now := time.Now()
	payment.Status = string(StatusPaid)
	payment.PerformedAt = &now
	if err := h.repo.UpdatePayment(ctx, payment); err != nil {
		h.finish(c, req, "complete", resp, clickErrFailedToUpdate, "failed to update payment")
		return
	}

	h.finish(c, req, "complete", resp, clickOK, "success")
}

func (h *ClickHandler) payableBooking(ctx context.Context, merchantTransID string) (*bookings.Booking, int, string) {
	bookingID, err := uuid.Parse(merchantTransID)
	if err != nil {
		return nil, clickErrOrderNotFound, "booking not found"
	}
	booking, err := h.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, clickErrOrderNotFound, "booking not found"
	}
	switch bookings.Status(booking.Status) {
	case bookings.StatusPending:
	case bookings.StatusConfirmed:
		return nil, clickErrAlreadyPaid, "already paid"
	default:
		return nil, clickErrTransactionAbort, "booking is cancelled"
	}
	if booking.ExpiresAt != nil && booking.ExpiresAt.Before(time.Now()) {
		return nil, clickErrTransactionAbort, "booking has expired"
	}
	return booking, clickOK, ""
}

// abortPayment marks the payment attempt cancelled.
func (h *ClickHandler) abortPayment(ctx context.Context, payment *Payment) {
	now := time.Now()
	payment.Status = string(StatusCancelled)
	payment.CancelledAt = &now
	if err := h.repo.UpdatePayment(ctx, payment); err != nil {
		h.log.ErrorWithContext(ctx, "failed to abort click payment", err, map[string]interface{}{
			"payment_id": payment.ID.String(),
		})
	}
}

// clickErrorCode names the numeric SHOP-API codes for the audit log
func clickErrorCode(code int) string {
	switch code {
	case clickErrSignCheck:
		return "SIGN_CHECK_FAILED"
	case clickErrIncorrectAmount:
		return "INCORRECT_AMOUNT"
	case clickErrActionNotFound:
		return "ACTION_NOT_FOUND"
	case clickErrAlreadyPaid:
		return "ALREADY_PAID"
	case clickErrOrderNotFound:
		return "ORDER_NOT_FOUND"
	case clickErrTransactionGone:
		return "TRANSACTION_NOT_FOUND"
	case clickErrFailedToUpdate:
		return "FAILED_TO_UPDATE"
	case clickErrBadRequest:
		return "BAD_REQUEST"
	case clickErrTransactionAbort:
		return "TRANSACTION_CANCELLED"
	default:
		return strconv.Itoa(code)
	}
}

func (h *ClickHandler) finish(c *gin.Context, req *clickRequest, operation string, resp *clickResponse, code int, note string) {
	resp.Error = code
	resp.ErrorNote = note

	requestBody, _ := json.Marshal(req)
	responseBody, _ := json.Marshal(resp)
	entry := &TransactionLog{
		Provider:   ProviderClick,
		Operation:  operation,
		ExternalID: req.ClickTransID,
		Status:     TxLogSuccess,
		Request:    string(requestBody),
		Response:   string(responseBody),
	}
	if code != clickOK {
		entry.Status = TxLogFailed
		entry.ErrorCode = clickErrorCode(code)
		entry.ErrorMessage = note
	}
	if err := h.repo.LogTransaction(c.Request.Context(), entry); err != nil {
		h.log.ErrorWithContext(c.Request.Context(), "failed to log click transaction", err, nil)
	}

	c.JSON(http.StatusOK, resp)
}
