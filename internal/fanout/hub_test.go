package fanout

import (
	"testing"
	"time"

	"ticketon/internal/coordinator"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteForRecipient(t *testing.T) {
	event := coordinator.NewSeatSelectedEvent("session-1", "seat-1", "user-a", time.Now().Add(5*time.Minute))

	// The actor sees "you" and keeps their id
	own := rewriteForRecipient(event, "user-a")
	assert.Equal(t, "you", own.Data["user"])
	assert.Equal(t, "user-a", own.UserID)
	assert.Equal(t, "seat-1", own.Data["seat_id"])

	// Everyone else sees "another_user" and no id
	other := rewriteForRecipient(event, "user-b")
	assert.Equal(t, "another_user", other.Data["user"])
	assert.Empty(t, other.UserID)

	// The original event is untouched
	assert.NotContains(t, event.Data, "user")
	assert.Equal(t, "user-a", event.UserID)
}

func TestRewriteForRecipientWithoutActor(t *testing.T) {
	event := &coordinator.Event{
		Type:      coordinator.EventSessionState,
		SessionID: "session-1",
		Data:      map[string]interface{}{"seats": []string{}},
		Timestamp: time.Now(),
	}

	out := rewriteForRecipient(event, "user-a")
	assert.NotContains(t, out.Data, "user")
	assert.Empty(t, out.UserID)
}

func TestCancelPendingCleanup(t *testing.T) {
	hub := NewHub(&config.Config{}, nil, nil, logger.New())

	timer := time.AfterFunc(time.Hour, func() {})
	hub.pendingCleanups["conn-1"] = pendingCleanup{timer: timer, userID: "user-a"}

	// A resume token is only honored for the user who owned the connection
	assert.False(t, hub.cancelPendingCleanup("conn-1", "user-b"))
	assert.Contains(t, hub.pendingCleanups, "conn-1")

	require.True(t, hub.cancelPendingCleanup("conn-1", "user-a"))
	assert.NotContains(t, hub.pendingCleanups, "conn-1")

	// Unknown connection ids are not recoverable
	assert.False(t, hub.cancelPendingCleanup("conn-2", "user-a"))
}
