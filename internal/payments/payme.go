package payments

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Payme JSON-RPC error codes
const (
	paymeErrInsufficientPrivilege = -32504
	paymeErrParse                 = -32700
	paymeErrMethodNotFound        = -32601
	paymeErrInvalidAmount         = -31001
	paymeErrTransactionNotFound   = -31003
	paymeErrCannotCancel          = -31007
	paymeErrCannotPerform         = -31008
	paymeErrAccountNotFound       = -31050
)

type paymeRequest struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type paymeAccount struct {
	BookingID string `json:"booking_id"`
}

type paymeCheckParams struct {
	Amount  int64        `json:"amount"`
	Account paymeAccount `json:"account"`
}

type paymeCreateParams struct {
	ID      string       `json:"id"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	Account paymeAccount `json:"account"`
}

type paymeTransactionParams struct {
	ID     string `json:"id"`
	Reason *int   `json:"reason,omitempty"`
}

type paymeStatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type paymeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PaymeHandler implements the merchant side of the Payme JSON-RPC
// protocol. Every response is HTTP 200; failures ride the error object.
type PaymeHandler struct {
	repo     Repository
	bookings BookingReader
	coord    Coordinator
	cfg      *config.Config
	log      *logger.Logger
}

func NewPaymeHandler(repo Repository, bookingReader BookingReader, coord Coordinator, cfg *config.Config, log *logger.Logger) *PaymeHandler {
	return &PaymeHandler{
		repo:     repo,
		bookings: bookingReader,
		coord:    coord,
		cfg:      cfg,
		log:      log,
	}
}

// HandleRPC handles POST /payments/payme/callback
func (h *PaymeHandler) HandleRPC(c *gin.Context) {
	var req paymeRequest
	body, err := c.GetRawData()
	if err != nil || json.Unmarshal(body, &req) != nil {
		c.JSON(http.StatusOK, gin.H{
			"id":    nil,
			"error": paymeError{Code: paymeErrParse, Message: "parse error"},
		})
		return
	}

	if !h.authorized(c.GetHeader("Authorization")) {
		h.log.LogAuthFailure(c.Request.Context(), "payme basic auth failed", c.ClientIP())
		h.respond(c, &req, string(body), nil, &paymeError{Code: paymeErrInsufficientPrivilege, Message: "insufficient privilege"})
		return
	}

	ctx := c.Request.Context()
	h.log.LogWebhook(ctx, ProviderPayme, req.Method, externalIDOf(&req))

	var result interface{}
	var rpcErr *paymeError

	switch req.Method {
	case "CheckPerformTransaction":
		result, rpcErr = h.checkPerform(ctx, req.Params)
	case "CreateTransaction":
		result, rpcErr = h.createTransaction(ctx, req.Params)
	case "PerformTransaction":
		result, rpcErr = h.performTransaction(ctx, req.Params)
	case "CancelTransaction":
		result, rpcErr = h.cancelTransaction(ctx, req.Params)
	case "CheckTransaction":
		result, rpcErr = h.checkTransaction(ctx, req.Params)
	case "GetStatement":
		result, rpcErr = h.getStatement(ctx, req.Params)
	default:
		rpcErr = &paymeError{Code: paymeErrMethodNotFound, Message: "method not found"}
	}

	h.respond(c, &req, string(body), result, rpcErr)
}

// authorized checks HTTP Basic credentials: login "Paycom", password the
// merchant key. The sandbox key is accepted alongside the live one.
func (h *PaymeHandler) authorized(header string) bool {
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}
	for _, key := range []string{h.cfg.Payme.SecretKey, h.cfg.Payme.TestKey} {
		if key == "" {
			continue
		}
		expected := "Paycom:" + key
		if subtle.ConstantTimeCompare(decoded, []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

func (h *PaymeHandler) respond(c *gin.Context, req *paymeRequest, requestBody string, result interface{}, rpcErr *paymeError) {
	payload := gin.H{"id": req.ID}
	if rpcErr != nil {
		payload["error"] = rpcErr
	} else {
		payload["result"] = result
	}

	responseBody, _ := json.Marshal(payload)
	entry := &TransactionLog{
		Provider:   ProviderPayme,
		Operation:  req.Method,
		ExternalID: externalIDOf(req),
		Status:     TxLogSuccess,
		Request:    requestBody,
		Response:   string(responseBody),
	}
	if rpcErr != nil {
		entry.Status = TxLogFailed
		entry.ErrorCode = strconv.Itoa(rpcErr.Code)
		entry.ErrorMessage = rpcErr.Message
	}
	if err := h.repo.LogTransaction(c.Request.Context(), entry); err != nil {
		h.log.ErrorWithContext(c.Request.Context(), "failed to log payme transaction", err, nil)
	}

	c.JSON(http.StatusOK, payload)
}

// payableBooking resolves the account to a booking that can still be paid
func (h *PaymeHandler) payableBooking(ctx context.Context, account paymeAccount, amount int64) (*bookings.Booking, *paymeError) {
	bookingID, err := uuid.Parse(account.BookingID)
	if err != nil {
		return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking not found"}
	}
	booking, err := h.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking not found"}
	}
	if bookings.Status(booking.Status) != bookings.StatusPending {
		return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking is not awaiting payment"}
	}
	if booking.ExpiresAt != nil && booking.ExpiresAt.Before(time.Now()) {
		return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking has expired"}
	}
	// Payme amounts are already in tiyin
	if amount != booking.TotalPrice {
		return nil, &paymeError{Code: paymeErrInvalidAmount, Message: "invalid amount"}
	}
	return booking, nil
}

func (h *PaymeHandler) checkPerform(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeCheckParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}
	if _, rpcErr := h.payableBooking(ctx, p.Account, p.Amount); rpcErr != nil {
		return nil, rpcErr
	}
	return gin.H{"allow": true}, nil
}

func (h *PaymeHandler) createTransaction(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeCreateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}

	if existing, err := h.repo.GetPaymentByExternalID(ctx, ProviderPayme, p.ID); err == nil {
		if existing.State != PaymeStateCreated {
			return nil, &paymeError{Code: paymeErrCannotPerform, Message: "transaction is finished"}
		}
		return gin.H{
			"create_time": existing.CreatedAt.UnixMilli(),
			"transaction": existing.ID.String(),
			"state":       existing.State,
		}, nil
	}

	booking, rpcErr := h.payableBooking(ctx, p.Account, p.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	// One Payme transaction per booking at a time
	if active, err := h.repo.GetActivePaymentByBookingID(ctx, booking.ID); err == nil {
		if active.Provider == ProviderPayme && active.State == PaymeStateCreated && active.ExternalID != p.ID {
			return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking is occupied by another transaction"}
		}
		if active.Provider == ProviderClick {
			return nil, &paymeError{Code: paymeErrAccountNotFound, Message: "booking is occupied by another transaction"}
		}
	}

	payment := &Payment{
		BookingID:    booking.ID,
		UserID:       booking.UserID,
		Provider:     ProviderPayme,
		Status:       string(StatusPending),
		Amount:       p.Amount,
		ExternalID:   p.ID,
		State:        PaymeStateCreated,
		ProviderTime: p.Time,
	}
	if err := h.repo.CreatePayment(ctx, payment); err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "failed to create transaction"}
	}

	return gin.H{
		"create_time": payment.CreatedAt.UnixMilli(),
		"transaction": payment.ID.String(),
		"state":       PaymeStateCreated,
	}, nil
}

func (h *PaymeHandler) performTransaction(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeTransactionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}

	payment, err := h.repo.GetPaymentByExternalID(ctx, ProviderPayme, p.ID)
	if err != nil {
		return nil, &paymeError{Code: paymeErrTransactionNotFound, Message: "transaction not found"}
	}

	switch payment.State {
	case PaymeStatePerformed:
		// Idempotent repeat
		return gin.H{
			"transaction":  payment.ID.String(),
			"perform_time": unixMilliOrZero(payment.PerformedAt),
			"state":        PaymeStatePerformed,
		}, nil
	case PaymeStateCreated:
	default:
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "transaction is cancelled"}
	}

	if _, err := h.coord.Confirm(ctx, payment.BookingID, payment.ID.String()); err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "booking can no longer be confirmed"}
	}

	now := time.Now()
	payment.State = PaymeStatePerformed
	payment.Status = string(StatusPaid)
	payment.PerformedAt = &now
	if err := h.repo.UpdatePayment(ctx, payment); err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "failed to update transaction"}
	}

	return gin.H{
		"transaction":  payment.ID.String(),
		"perform_time": now.UnixMilli(),
		"state":        PaymeStatePerformed,
	}, nil
}

func (h *PaymeHandler) cancelTransaction(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeTransactionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}

	payment, err := h.repo.GetPaymentByExternalID(ctx, ProviderPayme, p.ID)
	if err != nil {
		return nil, &paymeError{Code: paymeErrTransactionNotFound, Message: "transaction not found"}
	}

	switch payment.State {
	case PaymeStateCancelled, PaymeStateCancelledAfterPaid:
		// Idempotent repeat
		return gin.H{
			"transaction": payment.ID.String(),
			"cancel_time": unixMilliOrZero(payment.CancelledAt),
			"state":       payment.State,
		}, nil

	case PaymeStateCreated:
		now := time.Now()
		payment.State = PaymeStateCancelled
		payment.Status = string(StatusCancelled)
		payment.CancelledAt = &now
		payment.CancelReason = p.Reason
		if err := h.repo.UpdatePayment(ctx, payment); err != nil {
			return nil, &paymeError{Code: paymeErrCannotCancel, Message: "failed to update transaction"}
		}
		// The booking may already be expired or cancelled; that is fine
		if _, err := h.coord.CancelByProvider(ctx, payment.BookingID, "payment_cancelled"); err != nil {
			h.log.ErrorWithContext(ctx, "cancel after payme cancel failed", err, map[string]interface{}{
				"payment_id": payment.ID.String(),
			})
		}
		return gin.H{
			"transaction": payment.ID.String(),
			"cancel_time": now.UnixMilli(),
			"state":       PaymeStateCancelled,
		}, nil

	case PaymeStatePerformed:
		// Cancelling a performed transaction is a full refund
		now := time.Now()
		payment.State = PaymeStateCancelledAfterPaid
		payment.Status = string(StatusRefunded)
		payment.RefundedAmount = payment.Amount
		payment.CancelledAt = &now
		payment.RefundedAt = &now
		payment.CancelReason = p.Reason
		if err := h.repo.UpdatePayment(ctx, payment); err != nil {
			return nil, &paymeError{Code: paymeErrCannotCancel, Message: "failed to update transaction"}
		}
		if _, err := h.coord.CancelByProvider(ctx, payment.BookingID, "refund"); err != nil {
			h.log.ErrorWithContext(ctx, "cancel after payme refund failed", err, map[string]interface{}{
				"payment_id": payment.ID.String(),
			})
		}
		return gin.H{
			"transaction": payment.ID.String(),
			"cancel_time": now.UnixMilli(),
			"state":       PaymeStateCancelledAfterPaid,
		}, nil
	}

	return nil, &paymeError{Code: paymeErrCannotCancel, Message: "unable to cancel transaction"}
}

func (h *PaymeHandler) checkTransaction(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeTransactionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}

	payment, err := h.repo.GetPaymentByExternalID(ctx, ProviderPayme, p.ID)
	if err != nil {
		return nil, &paymeError{Code: paymeErrTransactionNotFound, Message: "transaction not found"}
	}

	return paymeTransactionView(payment), nil
}

func (h *PaymeHandler) getStatement(ctx context.Context, raw json.RawMessage) (interface{}, *paymeError) {
	var p paymeStatementParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &paymeError{Code: paymeErrParse, Message: "parse error"}
	}

	list, err := h.repo.ListPaymentsByProviderTime(ctx, ProviderPayme, p.From, p.To)
	if err != nil {
		return nil, &paymeError{Code: paymeErrCannotPerform, Message: "failed to list transactions"}
	}

	transactions := make([]gin.H, 0, len(list))
	for i := range list {
		view := paymeTransactionView(&list[i])
		view["id"] = list[i].ExternalID
		view["time"] = list[i].ProviderTime
		view["amount"] = list[i].Amount
		view["account"] = gin.H{"booking_id": list[i].BookingID.String()}
		transactions = append(transactions, view)
	}
	return gin.H{"transactions": transactions}, nil
}

func paymeTransactionView(p *Payment) gin.H {
	return gin.H{
		"create_time":  p.CreatedAt.UnixMilli(),
		"perform_time": unixMilliOrZero(p.PerformedAt),
		"cancel_time":  unixMilliOrZero(p.CancelledAt),
		"transaction":  p.ID.String(),
		"state":        p.State,
		"reason":       p.CancelReason,
	}
}

func unixMilliOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func externalIDOf(req *paymeRequest) string {
	var probe struct {
		ID string `json:"id"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &probe)
	}
	return probe.ID
}
