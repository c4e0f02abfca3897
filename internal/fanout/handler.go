package fanout

import (
	"context"
	"net/http"
	"strings"

	"ticketon/internal/shared/config"
	"ticketon/internal/shared/middleware"
	"ticketon/internal/shared/utils/response"
	"ticketon/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set Authorization on WebSocket handshakes reliably,
	// so origins are open and auth rides the token instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated HTTP requests into hub clients
type Handler struct {
	hub *Hub
	cfg *config.Config
	log *logger.Logger
}

func NewHandler(hub *Hub, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{hub: hub, cfg: cfg, log: log}
}

// Serve handles GET /ws/bookings
func (h *Handler) Serve(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		response.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token", nil)
		return
	}

	identity, err := middleware.ParseToken(token, h.cfg.JWT.Secret)
	if err != nil {
		h.log.LogAuthFailure(c.Request.Context(), err.Error(), c.ClientIP())
		response.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response
		h.log.ErrorWithContext(c.Request.Context(), "websocket upgrade failed", err, nil)
		return
	}

	client := NewClient(h.hub, conn, identity.UserID)
	h.log.InfoWithContext(c.Request.Context(), "WebSocket Connected", map[string]interface{}{
		"user_id":       identity.UserID,
		"connection_id": client.connectionID,
	})

	// The client learns its connection id here; replaying it as
	// resume_token on a reconnect inside the recovery window readopts the
	// dropped connection's holds.
	client.sendConnected()

	// The pumps outlive the handler; the request context dies when it
	// returns, so they get their own.
	ctx := context.Background()
	go client.WritePump(ctx)
	go client.ReadPump(ctx)
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
