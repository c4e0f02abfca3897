package sessions

import (
	"errors"
	"net/http"

	"ticketon/internal/shared/apperrors"
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

func (c *Controller) CreateSession(ctx *gin.Context) {
	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	session, err := c.service.CreateSession(ctx.Request.Context(), req)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Session created successfully", session, nil)
}

func (c *Controller) GetSession(ctx *gin.Context) {
	id := ctx.Param("id")
	if id == "" {
		response.RespondError(ctx, http.StatusBadRequest, apperrors.CodeValidationError, "session ID is required", nil)
		return
	}

	session, err := c.service.GetSession(ctx.Request.Context(), id)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Session retrieved successfully", session, nil)
}

func (c *Controller) ListSessions(ctx *gin.Context) {
	activeOnly := ctx.Query("active") == "true"

	sessions, err := c.service.ListSessions(ctx.Request.Context(), activeOnly)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Sessions retrieved successfully", sessions, nil)
}

func (c *Controller) UpdateSessionStatus(ctx *gin.Context) {
	id := ctx.Param("id")

	var req UpdateSessionStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	session, err := c.service.UpdateStatus(ctx.Request.Context(), id, SessionStatus(req.Status))
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Session status updated", session, nil)
}

func (c *Controller) GetSeatMap(ctx *gin.Context) {
	id := ctx.Param("id")

	seats, err := c.service.GetSeatMap(ctx.Request.Context(), id)
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Seat map retrieved successfully", seats, nil)
}

func (c *Controller) UpdateSeatStatus(ctx *gin.Context) {
	seatID := ctx.Param("seatId")

	var req UpdateSeatStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, err)
		return
	}

	seat, err := c.service.UpdateSeatStatus(ctx.Request.Context(), seatID, SeatStatus(req.Status))
	if err != nil {
		respondAppError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Seat status updated", seat, nil)
}
