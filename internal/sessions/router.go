package sessions

import (
	"ticketon/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSessionRoutes wires the session catalog endpoints
func SetupSessionRoutes(rg *gin.RouterGroup, controller *Controller) {
	sessions := rg.Group("/sessions")
	{
		// Public browse surface
		sessions.GET("", controller.ListSessions)
		sessions.GET("/:id", controller.GetSession)
		sessions.GET("/:id/seats", controller.GetSeatMap)

		// Admin / manager surface
		admin := sessions.Group("")
		admin.Use(middleware.JWTAuth(), middleware.RequireRoles("admin", "manager"))
		{
			admin.POST("", controller.CreateSession)
			admin.PATCH("/:id/status", controller.UpdateSessionStatus)
			admin.PATCH("/seats/:seatId/status", controller.UpdateSeatStatus)
		}
	}
}
