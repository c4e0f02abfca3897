package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ticketon/internal/coordinator"
	"ticketon/internal/holds"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/constants"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
)

// Coordinator is the slice of the seat coordinator the fan-out layer
// drives. Satisfied by coordinator.Service.
type Coordinator interface {
	Select(ctx context.Context, sessionID, seatID uuid.UUID, userID, connectionID string) (*coordinator.SelectResult, error)
	Release(ctx context.Context, sessionID, seatID uuid.UUID, userID string) error
	Reserve(ctx context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, connectionID string) (*coordinator.ReserveResult, error)
	CleanupConnection(ctx context.Context, sessionID uuid.UUID, connectionID, reason string) error
	SessionState(ctx context.Context, sessionID uuid.UUID) ([]coordinator.SeatState, error)
}

// pendingCleanup is one disconnected connection waiting out the recovery
// window. The user id gates resumption: only the same user may adopt the
// connection id back.
type pendingCleanup struct {
	timer  *time.Timer
	userID string
}

// Hub keeps per-session rooms of live connections and bridges the Redis
// event channel into them. Coordinators on any worker publish to Redis;
// every hub instance forwards to its local room members, rewriting the
// actor to "you" or "another_user" per recipient.
type Hub struct {
	cfg   *config.Config
	store *holds.Store
	coord Coordinator
	log   *logger.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	cleanupMu       sync.Mutex
	pendingCleanups map[string]pendingCleanup
}

func NewHub(cfg *config.Config, store *holds.Store, coord Coordinator, log *logger.Logger) *Hub {
	return &Hub{
		cfg:             cfg,
		store:           store,
		coord:           coord,
		log:             log,
		rooms:           make(map[string]map[*Client]struct{}),
		pendingCleanups: make(map[string]pendingCleanup),
	}
}

// Run consumes the session event channels until ctx is cancelled. Blocking;
// run it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.store.Subscribe(ctx, constants.ChannelPrefix+"*")
	defer pubsub.Close()

	h.log.InfoWithContext(ctx, "Fanout Hub Started", nil)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event, err := coordinator.DecodeEvent(msg.Payload)
			if err != nil {
				h.log.ErrorWithContext(ctx, "failed to decode channel event", err, nil)
				continue
			}
			h.dispatch(event)
		}
	}
}

// Join places the client in the session room, restores a recovering
// connection's identity, and sends the seat snapshot. The snapshot doubles
// as the session gate: a missing or inactive session fails before the
// client touches the room or the presence set.
func (h *Hub) Join(ctx context.Context, client *Client, sessionID uuid.UUID, resumeToken string) error {
	// A reconnect inside the recovery window adopts its previous
	// connection id so its holds stay bound. The token is only honored
	// for the user who owned the dropped connection.
	if resumeToken != "" && h.cancelPendingCleanup(resumeToken, client.userID) {
		client.connectionID = resumeToken
	}

	state, err := h.coord.SessionState(ctx, sessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if client.sessionID != "" && client.sessionID != sessionID.String() {
		h.removeLocked(client)
	}
	room, ok := h.rooms[sessionID.String()]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[sessionID.String()] = room
	}
	room[client] = struct{}{}
	client.sessionID = sessionID.String()
	h.mu.Unlock()

	presenceKey := constants.BuildPresenceKey(sessionID.String())
	if err := h.store.SetAdd(ctx, presenceKey, client.connectionID); err != nil {
		h.log.ErrorWithContext(ctx, "failed to add presence", err, nil)
	}
	h.publishPresence(ctx, sessionID.String(), client.userID, "joined")

	// Snapshot goes only to the joining client
	client.sendEvent(&coordinator.Event{
		Type:      coordinator.EventSessionState,
		SessionID: sessionID.String(),
		Data:      map[string]interface{}{"seats": state},
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Leave removes the client from its room and releases its presence slot.
// Holds are cleaned immediately: an explicit leave is not a network drop.
func (h *Hub) Leave(ctx context.Context, client *Client) {
	sessionID := h.removeFromRoom(client)
	if sessionID == "" {
		return
	}

	h.clearPresence(ctx, sessionID, client)

	if id, err := uuid.Parse(sessionID); err == nil {
		if err := h.coord.CleanupConnection(ctx, id, client.connectionID, coordinator.ReleaseReasonDisconnect); err != nil {
			h.log.ErrorWithContext(ctx, "cleanup on leave failed", err, nil)
		}
	}
}

// Disconnect handles a dropped connection. Hold cleanup is deferred by the
// recovery window so a flaky client can reconnect without losing its seats.
func (h *Hub) Disconnect(client *Client) {
	sessionID := h.removeFromRoom(client)
	if sessionID == "" {
		return
	}

	ctx := context.Background()
	h.clearPresence(ctx, sessionID, client)

	sessionUUID, err := uuid.Parse(sessionID)
	if err != nil {
		return
	}

	connectionID := client.connectionID
	timer := time.AfterFunc(h.cfg.WebSocket.RecoveryWindow, func() {
		h.cleanupMu.Lock()
		delete(h.pendingCleanups, connectionID)
		h.cleanupMu.Unlock()

		// The recovery window lapsed without a resume: the holds timed out.
		if err := h.coord.CleanupConnection(context.Background(), sessionUUID, connectionID, coordinator.ReleaseReasonTimeout); err != nil {
			h.log.ErrorWithContext(context.Background(), "deferred cleanup failed", err, map[string]interface{}{
				"connection_id": connectionID,
			})
		}
	})

	h.cleanupMu.Lock()
	h.pendingCleanups[connectionID] = pendingCleanup{timer: timer, userID: client.userID}
	h.cleanupMu.Unlock()
}

func (h *Hub) cancelPendingCleanup(connectionID, userID string) bool {
	h.cleanupMu.Lock()
	defer h.cleanupMu.Unlock()
	pending, ok := h.pendingCleanups[connectionID]
	if !ok || pending.userID != userID {
		return false
	}
	pending.timer.Stop()
	delete(h.pendingCleanups, connectionID)
	return true
}

func (h *Hub) removeFromRoom(client *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) string {
	sessionID := client.sessionID
	if sessionID == "" {
		return ""
	}
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	client.sessionID = ""
	return sessionID
}

func (h *Hub) clearPresence(ctx context.Context, sessionID string, client *Client) {
	presenceKey := constants.BuildPresenceKey(sessionID)
	if err := h.store.SetRemove(ctx, presenceKey, client.connectionID); err != nil {
		h.log.ErrorWithContext(ctx, "failed to remove presence", err, nil)
	}
	h.publishPresence(ctx, sessionID, client.userID, "left")
}

func (h *Hub) publishPresence(ctx context.Context, sessionID, userID, action string) {
	count, err := h.store.SetCardinality(ctx, constants.BuildPresenceKey(sessionID))
	if err != nil {
		count = 0
	}
	event := &coordinator.Event{
		Type:      coordinator.EventSessionUpdated,
		SessionID: sessionID,
		UserID:    userID,
		Data:      map[string]interface{}{"action": action, "viewers": count},
		Timestamp: time.Now().UTC(),
	}
	encoded, err := event.Encode()
	if err != nil {
		return
	}
	if err := h.store.Publish(ctx, constants.BuildSessionChannel(sessionID), encoded); err != nil {
		h.log.ErrorWithContext(ctx, "failed to publish presence", err, nil)
	}
}

// dispatch fans one channel event out to the local room
func (h *Hub) dispatch(event *coordinator.Event) {
	h.mu.RLock()
	room := h.rooms[event.SessionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.sendEvent(rewriteForRecipient(event, c.userID))
	}
}

// rewriteForRecipient tags the event actor as "you" or "another_user" and
// hides the raw user id from everyone but the actor.
func rewriteForRecipient(event *coordinator.Event, recipientUserID string) *coordinator.Event {
	out := &coordinator.Event{
		Type:      event.Type,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
	}

	data := make(map[string]interface{}, len(event.Data)+1)
	for k, v := range event.Data {
		data[k] = v
	}

	if event.UserID != "" {
		if event.UserID == recipientUserID {
			data["user"] = "you"
			out.UserID = event.UserID
		} else {
			data["user"] = "another_user"
		}
	}
	out.Data = data
	return out
}

func encodeEvent(event *coordinator.Event) ([]byte, bool) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, false
	}
	return raw, true
}
