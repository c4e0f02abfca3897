package fanout

import (
	"context"
	"time"

	"ticketon/internal/coordinator"
	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection bound to an authenticated user.
// One goroutine reads, one writes; sendEvent never blocks the hub.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       string
	connectionID string
	sessionID    string // current room, managed by the hub
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, hub.cfg.WebSocket.SendBufferSize),
		userID:       userID,
		connectionID: uuid.NewString(),
	}
}

// sendEvent queues an event for delivery. A client that cannot drain its
// buffer is dropped instead of stalling the room.
func (c *Client) sendEvent(event *coordinator.Event) {
	raw, ok := encodeEvent(event)
	if !ok {
		return
	}
	select {
	case c.send <- raw:
	default:
		c.conn.Close()
	}
}

// sendConnected hands the client its resume token. Queued before the pumps
// start so it is the first frame out.
func (c *Client) sendConnected() {
	c.sendEvent(&coordinator.Event{
		Type: coordinator.EventConnected,
		Data: map[string]interface{}{
			"connection_id": c.connectionID,
			"recovery_window_seconds": int(c.hub.cfg.WebSocket.RecoveryWindow.Seconds()),
		},
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) sendError(err error) {
	appErr := apperrors.FromError(err)
	data := map[string]interface{}{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.SeatID != "" {
		data["seat_id"] = appErr.SeatID
	}
	if appErr.CurrentStatus != "" {
		data["current_status"] = appErr.CurrentStatus
	}
	if appErr.RetryAfter > 0 {
		data["retry_after"] = appErr.RetryAfter
	}
	eventType := coordinator.EventError
	if appErr.Kind == apperrors.KindRateLimited {
		eventType = coordinator.EventRateLimited
	}
	c.sendEvent(&coordinator.Event{
		Type:      eventType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// ReadPump consumes inbound frames until the connection dies. Must run on
// the connection's read goroutine.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	wsCfg := c.hub.cfg.WebSocket
	c.conn.SetReadLimit(wsCfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsCfg.PingInterval + wsCfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsCfg.PingInterval + wsCfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := DecodeClientMessage(raw)
		if err != nil {
			c.sendError(err)
			continue
		}
		if err := c.handleMessage(ctx, msg); err != nil {
			c.sendError(err)
		}
	}
}

// WritePump flushes queued frames and keeps the connection alive with
// pings. Must run on its own goroutine.
func (c *Client) WritePump(ctx context.Context) {
	wsCfg := c.hub.cfg.WebSocket
	ticker := time.NewTicker(wsCfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsCfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsCfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *ClientMessage) error {
	switch msg.Type {
	case MessageJoinSession:
		sessionID, err := msg.SessionUUID()
		if err != nil {
			return err
		}
		return c.hub.Join(ctx, c, sessionID, msg.ResumeToken)

	case MessageLeaveSession:
		c.hub.Leave(ctx, c)
		return nil

	case MessageSelectSeat:
		sessionID, seatID, err := c.targetSeat(msg)
		if err != nil {
			return err
		}
		_, err = c.hub.coord.Select(ctx, sessionID, seatID, c.userID, c.connectionID)
		return err

	case MessageReleaseSeats:
		sessionID, err := c.currentSession(msg)
		if err != nil {
			return err
		}
		seatIDs, err := msg.SeatUUIDs()
		if err != nil {
			// A single seat_id is accepted as shorthand for a one-element list
			seatID, seatErr := msg.SeatUUID()
			if seatErr != nil {
				return err
			}
			seatIDs = []uuid.UUID{seatID}
		}
		for _, seatID := range seatIDs {
			if err := c.hub.coord.Release(ctx, sessionID, seatID, c.userID); err != nil {
				return err
			}
		}
		return nil

	case MessageReserveSeats:
		sessionID, err := c.currentSession(msg)
		if err != nil {
			return err
		}
		seatIDs, err := msg.SeatUUIDs()
		if err != nil {
			return err
		}
		userID, err := uuid.Parse(c.userID)
		if err != nil {
			return apperrors.Unauthorized("invalid user id in token")
		}
		_, err = c.hub.coord.Reserve(ctx, sessionID, seatIDs, userID, c.connectionID)
		return err

	default:
		return apperrors.Validation("unknown message type")
	}
}

func (c *Client) targetSeat(msg *ClientMessage) (uuid.UUID, uuid.UUID, error) {
	sessionID, err := c.currentSession(msg)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	seatID, err := msg.SeatUUID()
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return sessionID, seatID, nil
}

// currentSession resolves the session the operation targets: the explicit
// field when present, else the joined room.
func (c *Client) currentSession(msg *ClientMessage) (uuid.UUID, error) {
	if msg.SessionID != "" {
		return msg.SessionUUID()
	}
	if c.sessionID == "" {
		return uuid.Nil, apperrors.Validation("join a session first")
	}
	return uuid.Parse(c.sessionID)
}
