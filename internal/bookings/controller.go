package bookings

import (
	"errors"
	"net/http"

	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/middleware"
	"ticketon/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
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

func (c *Controller) GetMyBookings(ctx *gin.Context) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
		return
	}

	var query BookingListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	page, err := c.service.ListUserBookings(ctx.Request.Context(), identity.UserID, query)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Bookings retrieved successfully", page, nil)
}

func (c *Controller) GetBooking(ctx *gin.Context) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
		return
	}

	booking, err := c.service.GetBooking(ctx.Request.Context(), ctx.Param("id"), identity.UserID, identity.Role == "admin")
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Booking retrieved successfully", booking, nil)
}

func (c *Controller) CancelBooking(ctx *gin.Context) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, apperrors.CodeUnauthorized, "authentication required", nil)
		return
	}

	// Admins cancel on anyone's behalf
	userID := identity.UserID
	if identity.Role == "admin" {
		userID = ""
	}

	booking, err := c.service.CancelBooking(ctx.Request.Context(), ctx.Param("id"), userID)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Booking cancelled", booking, nil)
}

func (c *Controller) ListAllBookings(ctx *gin.Context) {
	var query BookingListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	page, err := c.service.ListAllBookings(ctx.Request.Context(), query)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Bookings retrieved successfully", page, nil)
}
