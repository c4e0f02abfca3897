package payments

import (
	"errors"
	"net/http"

	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/middleware"
	"ticketon/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

func respondAppError(ctx *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		response.RespondError(ctx, appErr.Status, appErr.Code, appErr.Message, nil)
		return
	}
	response.RespondError(ctx, http.StatusInternalServerError, apperrors.CodeInternal, "internal server error", nil)
}

func (c *Controller) CreatePayment(ctx *gin.Context) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
		return
	}

	var req CreatePaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, apperrors.CodeValidationError, "booking_id must be a valid uuid", nil)
		return
	}
	userID, err := uuid.Parse(identity.UserID)
	if err != nil {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid user id in token", nil)
		return
	}

	payment, err := c.service.CreatePayment(ctx.Request.Context(), bookingID, userID, req.Provider, req.Amount)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Payment created successfully", payment, nil)
}

func (c *Controller) GetPayment(ctx *gin.Context) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
		return
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, apperrors.CodeValidationError, "payment ID must be a valid uuid", nil)
		return
	}

	payment, err := c.service.GetPayment(ctx.Request.Context(), id, identity.UserID, identity.Role == "admin")
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payment retrieved successfully", payment, nil)
}

func (c *Controller) ListPayments(ctx *gin.Context) {
	var query PaymentListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	list, totalCount, err := c.service.ListPayments(ctx.Request.Context(), query)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payments retrieved successfully", gin.H{
		"payments":    list,
		"total_count": totalCount,
		"page":        query.Page,
		"limit":       query.Limit,
	}, nil)
}

func (c *Controller) RefundPayment(ctx *gin.Context) {
	var req RefundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	id, err := uuid.Parse(req.PaymentID)
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, apperrors.CodeValidationError, "payment_id must be a valid uuid", nil)
		return
	}

	payment, err := c.service.Refund(ctx.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payment refunded", payment, nil)
}

func (c *Controller) GetTransactions(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, apperrors.CodeValidationError, "payment ID must be a valid uuid", nil)
		return
	}

	logs, err := c.service.GetTransactions(ctx.Request.Context(), id)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Transactions retrieved successfully", logs, nil)
}
