package payments

import (
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes wires payment endpoints. Provider webhooks authenticate
// themselves (Basic auth, signatures) so they bypass JWT.
func SetupPaymentRoutes(rg *gin.RouterGroup, controller *Controller, payme *PaymeHandler, click *ClickHandler, cfg *config.Config) {
	payments := rg.Group("/payments")

	// Provider webhooks
	payments.POST("/payme/callback", payme.HandleRPC)
	payments.POST("/click/prepare", click.Prepare)
	payments.POST("/click/complete", click.Complete)

	// Authenticated API
	authenticated := payments.Group("")
	authenticated.Use(middleware.JWTAuthWithConfig(cfg))
	{
		authenticated.POST("", controller.CreatePayment)
		authenticated.GET("", middleware.RequireAdmin(), controller.ListPayments)
		authenticated.POST("/refund", middleware.RequireAdmin(), controller.RefundPayment)
		authenticated.GET("/:id", controller.GetPayment)
		authenticated.GET("/:id/transactions", middleware.RequireAdmin(), controller.GetTransactions)
	}
}
