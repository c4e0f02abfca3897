package routes

import (
	"net/http"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/coordinator"
	"ticketon/internal/expiration"
	"ticketon/internal/fanout"
	"ticketon/internal/holds"
	"ticketon/internal/notifications"
	"ticketon/internal/payments"
	"ticketon/internal/sessions"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/database"
	"ticketon/pkg/logger"
	"ticketon/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	store  *holds.Store
	log    *logger.Logger

	// Long-lived components the server starts and stops. Populated by
	// SetupRoutes.
	Coordinator *coordinator.Service
	Engine      *expiration.Engine
	Hub         *fanout.Hub
	Events      *notifications.Service
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, store *holds.Store, log *logger.Logger) *Router {
	return &Router{
		config: cfg,
		db:     db,
		store:  store,
		log:    log,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) error {
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     r.config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(r.requestLogger())

	limiter := ratelimit.NewRateLimiter(r.db.GetRedis(), &ratelimit.Config{
		Enabled:         r.config.RateLimit.Enabled,
		WindowDuration:  r.config.RateLimit.WindowDuration,
		DefaultRequests: r.config.RateLimit.SelectionsPerMin * 10,
		BookingRequests: r.config.RateLimit.SelectionsPerMin,
		PaymentRequests: r.config.RateLimit.PaymentRequests,
		WhitelistedIPs:  r.config.RateLimit.WhitelistedIPs,
	})
	engine.Use(ratelimit.Middleware(limiter))

	r.setupHealthRoutes(engine)

	// Shared repositories and the coordinator the feature routers hang off
	sessionRepo := sessions.NewRepository(r.db.GetPostgreSQL())
	bookingRepo := bookings.NewRepository(r.db.GetPostgreSQL())

	coord := coordinator.NewService(sessionRepo, bookingRepo, r.store, r.config, r.log)
	r.Coordinator = coord

	producer, err := notifications.NewProducer(r.config, r.log)
	if err != nil {
		return err
	}
	r.Events = notifications.NewService(producer, r.log)
	coord.SetNotifier(r.Events)

	r.Engine = expiration.NewEngine(bookingRepo, sessionRepo, r.store, r.config, r.log)
	r.Engine.SetNotifier(r.Events)

	r.Hub = fanout.NewHub(r.config, r.store, coord, r.log)
	wsHandler := fanout.NewHandler(r.Hub, r.config, r.log)
	engine.GET("/ws/bookings", wsHandler.Serve)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		sessions.SetupSessionRoutes(api, sessions.NewController(sessions.NewService(sessionRepo)))

		bookingService := bookings.NewService(bookingRepo, coord, r.log)
		bookings.SetupBookingRoutes(api, bookings.NewController(bookingService), r.config)

		paymentRepo := payments.NewRepository(r.db.GetPostgreSQL())
		paymentService := payments.NewService(paymentRepo, bookingRepo, coord, r.config, r.log)
		payme := payments.NewPaymeHandler(paymentRepo, bookingRepo, coord, r.config, r.log)
		click := payments.NewClickHandler(paymentRepo, bookingRepo, coord, r.config, r.log)
		payments.SetupPaymentRoutes(api, payments.NewController(paymentService), payme, click, r.config)
	}

	return nil
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "ticketon-core",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "ticketon-core",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}

func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.LogHTTPRequest(c, time.Since(start))
	}
}
