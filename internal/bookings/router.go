package bookings

import (
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes wires the booking REST endpoints
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	bookings := rg.Group("/bookings")
	bookings.Use(middleware.JWTAuthWithConfig(cfg))
	{
		bookings.GET("", controller.GetMyBookings)
		bookings.GET("/:id", controller.GetBooking)
		bookings.POST("/:id/cancel", controller.CancelBooking)
	}

	admin := rg.Group("/admin/bookings")
	admin.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireRoles("admin", "manager"))
	{
		admin.GET("", controller.ListAllBookings)
	}
}
