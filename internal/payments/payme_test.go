package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeRepo struct {
	byID        map[uuid.UUID]*Payment
	nextPrepare int64
	logs        []TransactionLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*Payment)}
}

func (f *fakeRepo) CreatePayment(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	f.nextPrepare++
	p.PrepareID = f.nextPrepare
	f.byID[p.ID] = p
	return nil
}

func (f *fakeRepo) GetPaymentByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (f *fakeRepo) GetPaymentByExternalID(_ context.Context, provider, externalID string) (*Payment, error) {
	for _, p := range f.byID {
		if p.Provider == provider && p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (f *fakeRepo) GetPaymentByPrepareID(_ context.Context, prepareID int64) (*Payment, error) {
	for _, p := range f.byID {
		if p.PrepareID == prepareID {
			return p, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (f *fakeRepo) GetActivePaymentByBookingID(_ context.Context, bookingID uuid.UUID) (*Payment, error) {
	for _, p := range f.byID {
		if p.BookingID == bookingID && p.IsActive() {
			return p, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (f *fakeRepo) UpdatePayment(_ context.Context, p *Payment) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakeRepo) ListPaymentsByProviderTime(_ context.Context, provider string, from, to int64) ([]Payment, error) {
	var list []Payment
	for _, p := range f.byID {
		if p.Provider == provider && p.ProviderTime >= from && p.ProviderTime <= to {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (f *fakeRepo) ListPayments(_ context.Context, query PaymentListQuery) ([]Payment, int64, error) {
	var list []Payment
	for _, p := range f.byID {
		if query.Status != "" && p.Status != query.Status {
			continue
		}
		if query.Provider != "" && p.Provider != query.Provider {
			continue
		}
		list = append(list, *p)
	}
	return list, int64(len(list)), nil
}

func (f *fakeRepo) LogTransaction(_ context.Context, log *TransactionLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeRepo) ListTransactionsByPaymentExternalID(_ context.Context, provider, externalID string) ([]TransactionLog, error) {
	var list []TransactionLog
	for i := range f.logs {
		if f.logs[i].Provider == provider && f.logs[i].ExternalID == externalID {
			list = append(list, f.logs[i])
		}
	}
	return list, nil
}

type fakeBookingReader struct {
	byID map[uuid.UUID]*bookings.Booking
}

func (f *fakeBookingReader) GetBookingByID(_ context.Context, id uuid.UUID) (*bookings.Booking, error) {
	if b, ok := f.byID[id]; ok {
		return b, nil
	}
	return nil, apperrors.ErrBookingNotFound
}

type fakeCoordinator struct {
	bookings   *fakeBookingReader
	confirmErr error
	confirmed  []uuid.UUID
	cancelled  []uuid.UUID
}

func (f *fakeCoordinator) Confirm(_ context.Context, bookingID uuid.UUID, _ string) (*bookings.Booking, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	b, ok := f.bookings.byID[bookingID]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	b.Status = string(bookings.StatusConfirmed)
	f.confirmed = append(f.confirmed, bookingID)
	return b, nil
}

func (f *fakeCoordinator) CancelByProvider(_ context.Context, bookingID uuid.UUID, reason string) (*bookings.Booking, error) {
	b, ok := f.bookings.byID[bookingID]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	b.Status = string(bookings.StatusCancelled)
	b.CancelReason = reason
	f.cancelled = append(f.cancelled, bookingID)
	return b, nil
}

// ---- fixture ----

type paymeFixture struct {
	router  *gin.Engine
	repo    *fakeRepo
	coord   *fakeCoordinator
	booking *bookings.Booking
}

func newPaymeFixture(t *testing.T) *paymeFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	expiresAt := time.Now().Add(10 * time.Minute)
	booking := &bookings.Booking{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		SeatID:     uuid.New(),
		UserID:     uuid.New(),
		Status:     string(bookings.StatusPending),
		TotalPrice: 500000, // 5000.00 in tiyin
		ExpiresAt:  &expiresAt,
	}

	repo := newFakeRepo()
	reader := &fakeBookingReader{byID: map[uuid.UUID]*bookings.Booking{booking.ID: booking}}
	coord := &fakeCoordinator{bookings: reader}

	cfg := &config.Config{
		Payme: config.PaymeConfig{MerchantID: "merchant", SecretKey: "live-key", TestKey: "test-key"},
	}

	handler := NewPaymeHandler(repo, reader, coord, cfg, logger.New())
	router := gin.New()
	router.POST("/payments/payme/callback", handler.HandleRPC)

	return &paymeFixture{router: router, repo: repo, coord: coord, booking: booking}
}

func (f *paymeFixture) call(t *testing.T, method string, params interface{}, key string) map[string]interface{} {
	t.Helper()

	body, err := json.Marshal(gin.H{"id": 1, "method": method, "params": params})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/payments/payme/callback", bytes.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("Paycom:"+key)))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return parsed
}

func errorCode(t *testing.T, resp map[string]interface{}) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok, "expected error in response: %v", resp)
	return int(errObj["code"].(float64))
}

func result(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	res, ok := resp["result"].(map[string]interface{})
	require.True(t, ok, "expected result in response: %v", resp)
	return res
}

// ---- tests ----

func TestPaymeRejectsBadCredentials(t *testing.T) {
	f := newPaymeFixture(t)

	resp := f.call(t, "CheckPerformTransaction", gin.H{}, "wrong-key")
	assert.Equal(t, paymeErrInsufficientPrivilege, errorCode(t, resp))

	resp = f.call(t, "CheckPerformTransaction", gin.H{}, "")
	assert.Equal(t, paymeErrInsufficientPrivilege, errorCode(t, resp))
}

func TestPaymeAcceptsTestKey(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{"amount": 500000, "account": gin.H{"booking_id": f.booking.ID.String()}}
	resp := f.call(t, "CheckPerformTransaction", params, "test-key")
	assert.Equal(t, true, result(t, resp)["allow"])
}

func TestPaymeCheckPerformTransaction(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{"amount": 500000, "account": gin.H{"booking_id": f.booking.ID.String()}}
	resp := f.call(t, "CheckPerformTransaction", params, "live-key")
	assert.Equal(t, true, result(t, resp)["allow"])

	// Wrong amount
	params["amount"] = 400000
	resp = f.call(t, "CheckPerformTransaction", params, "live-key")
	assert.Equal(t, paymeErrInvalidAmount, errorCode(t, resp))

	// Unknown booking
	params = gin.H{"amount": 500000, "account": gin.H{"booking_id": uuid.NewString()}}
	resp = f.call(t, "CheckPerformTransaction", params, "live-key")
	assert.Equal(t, paymeErrAccountNotFound, errorCode(t, resp))
}

func TestPaymeRejectsNonPendingBooking(t *testing.T) {
	f := newPaymeFixture(t)
	f.booking.Status = string(bookings.StatusConfirmed)

	params := gin.H{"amount": 500000, "account": gin.H{"booking_id": f.booking.ID.String()}}
	resp := f.call(t, "CheckPerformTransaction", params, "live-key")
	assert.Equal(t, paymeErrAccountNotFound, errorCode(t, resp))
}

func TestPaymeCreateTransactionIsIdempotent(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}

	first := result(t, f.call(t, "CreateTransaction", params, "live-key"))
	assert.Equal(t, float64(PaymeStateCreated), first["state"])

	second := result(t, f.call(t, "CreateTransaction", params, "live-key"))
	assert.Equal(t, first["transaction"], second["transaction"])
	assert.Equal(t, first["create_time"], second["create_time"])
}

func TestPaymeRejectsSecondTransactionForBooking(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", params, "live-key")

	params["id"] = "txn-2"
	resp := f.call(t, "CreateTransaction", params, "live-key")
	assert.Equal(t, paymeErrAccountNotFound, errorCode(t, resp))
}

func TestPaymePerformTransaction(t *testing.T) {
	f := newPaymeFixture(t)

	createParams := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")

	resp := result(t, f.call(t, "PerformTransaction", gin.H{"id": "txn-1"}, "live-key"))
	assert.Equal(t, float64(PaymeStatePerformed), resp["state"])
	assert.NotZero(t, resp["perform_time"])
	assert.Equal(t, []uuid.UUID{f.booking.ID}, f.coord.confirmed)

	// Idempotent repeat keeps the original perform_time
	repeat := result(t, f.call(t, "PerformTransaction", gin.H{"id": "txn-1"}, "live-key"))
	assert.Equal(t, resp["perform_time"], repeat["perform_time"])
	assert.Len(t, f.coord.confirmed, 1)

	// Unknown transaction
	missing := f.call(t, "PerformTransaction", gin.H{"id": "txn-404"}, "live-key")
	assert.Equal(t, paymeErrTransactionNotFound, errorCode(t, missing))
}

func TestPaymeCancelBeforePerform(t *testing.T) {
	f := newPaymeFixture(t)

	createParams := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")

	resp := result(t, f.call(t, "CancelTransaction", gin.H{"id": "txn-1", "reason": 3}, "live-key"))
	assert.Equal(t, float64(PaymeStateCancelled), resp["state"])
	assert.Equal(t, []uuid.UUID{f.booking.ID}, f.coord.cancelled)

	payment, err := f.repo.GetPaymentByExternalID(context.Background(), ProviderPayme, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, string(StatusCancelled), payment.Status)
	require.NotNil(t, payment.CancelReason)
	assert.Equal(t, 3, *payment.CancelReason)
}

func TestPaymeCancelAfterPerformRefunds(t *testing.T) {
	f := newPaymeFixture(t)

	createParams := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")
	f.call(t, "PerformTransaction", gin.H{"id": "txn-1"}, "live-key")

	resp := result(t, f.call(t, "CancelTransaction", gin.H{"id": "txn-1", "reason": 5}, "live-key"))
	assert.Equal(t, float64(PaymeStateCancelledAfterPaid), resp["state"])

	payment, err := f.repo.GetPaymentByExternalID(context.Background(), ProviderPayme, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, string(StatusRefunded), payment.Status)
	assert.Equal(t, payment.Amount, payment.RefundedAmount)
	assert.Equal(t, "refund", f.booking.CancelReason)
}

func TestPaymeCheckTransaction(t *testing.T) {
	f := newPaymeFixture(t)

	createParams := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")

	resp := result(t, f.call(t, "CheckTransaction", gin.H{"id": "txn-1"}, "live-key"))
	assert.Equal(t, float64(PaymeStateCreated), resp["state"])
	assert.NotZero(t, resp["create_time"])
	assert.Zero(t, resp["perform_time"])
	assert.Zero(t, resp["cancel_time"])
}

func TestPaymeGetStatement(t *testing.T) {
	f := newPaymeFixture(t)

	now := time.Now().UnixMilli()
	createParams := gin.H{
		"id":      "txn-1",
		"time":    now,
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")

	resp := result(t, f.call(t, "GetStatement", gin.H{"from": now - 1000, "to": now + 1000}, "live-key"))
	transactions := resp["transactions"].([]interface{})
	require.Len(t, transactions, 1)
	first := transactions[0].(map[string]interface{})
	assert.Equal(t, "txn-1", first["id"])
	assert.Equal(t, f.booking.ID.String(), first["account"].(map[string]interface{})["booking_id"])

	// Outside the window
	resp = result(t, f.call(t, "GetStatement", gin.H{"from": now + 5000, "to": now + 6000}, "live-key"))
	assert.Empty(t, resp["transactions"])
}

func TestPaymeUnknownMethod(t *testing.T) {
	f := newPaymeFixture(t)
	resp := f.call(t, "DoSomethingElse", gin.H{}, "live-key")
	assert.Equal(t, paymeErrMethodNotFound, errorCode(t, resp))
}

func TestPaymeLogsEveryCall(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{"amount": 500000, "account": gin.H{"booking_id": f.booking.ID.String()}}
	f.call(t, "CheckPerformTransaction", params, "live-key")

	require.NotEmpty(t, f.repo.logs)
	assert.Equal(t, ProviderPayme, f.repo.logs[0].Provider)
	assert.Equal(t, "CheckPerformTransaction", f.repo.logs[0].Operation)
	assert.Equal(t, TxLogSuccess, f.repo.logs[0].Status)
	assert.Empty(t, f.repo.logs[0].ErrorCode)
}

func TestPaymeLogsFailedCallWithErrorCode(t *testing.T) {
	f := newPaymeFixture(t)

	params := gin.H{"amount": 400000, "account": gin.H{"booking_id": f.booking.ID.String()}}
	resp := f.call(t, "CheckPerformTransaction", params, "live-key")
	assert.Equal(t, paymeErrInvalidAmount, errorCode(t, resp))

	require.NotEmpty(t, f.repo.logs)
	last := f.repo.logs[len(f.repo.logs)-1]
	assert.Equal(t, TxLogFailed, last.Status)
	assert.Equal(t, strconv.Itoa(paymeErrInvalidAmount), last.ErrorCode)
	assert.NotEmpty(t, last.ErrorMessage)
}

func TestPaymePerformFailsWhenBookingGone(t *testing.T) {
	f := newPaymeFixture(t)

	createParams := gin.H{
		"id":      "txn-1",
		"time":    time.Now().UnixMilli(),
		"amount":  500000,
		"account": gin.H{"booking_id": f.booking.ID.String()},
	}
	f.call(t, "CreateTransaction", createParams, "live-key")

	f.coord.confirmErr = fmt.Errorf("booking expired")
	resp := f.call(t, "PerformTransaction", gin.H{"id": "txn-1"}, "live-key")
	assert.Equal(t, paymeErrCannotPerform, errorCode(t, resp))
}
