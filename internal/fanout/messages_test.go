package fanout

import (
	"errors"
	"testing"

	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"select_seat","session_id":"a","seat_id":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageSelectSeat, msg.Type)

	_, err = DecodeClientMessage([]byte(`not json`))
	assertValidation(t, err)

	_, err = DecodeClientMessage([]byte(`{"session_id":"a"}`))
	assertValidation(t, err)
}

func TestSeatUUIDsValidation(t *testing.T) {
	msg := &ClientMessage{SeatIDs: []string{uuid.NewString(), uuid.NewString()}}
	ids, err := msg.SeatUUIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	msg = &ClientMessage{}
	_, err = msg.SeatUUIDs()
	assertValidation(t, err)

	msg = &ClientMessage{SeatIDs: []string{"not-a-uuid"}}
	_, err = msg.SeatUUIDs()
	assertValidation(t, err)
}

func TestSessionUUIDValidation(t *testing.T) {
	msg := &ClientMessage{SessionID: uuid.NewString()}
	_, err := msg.SessionUUID()
	require.NoError(t, err)

	msg = &ClientMessage{SessionID: "nope"}
	_, err = msg.SessionUUID()
	assertValidation(t, err)
}

func assertValidation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeValidationError, appErr.Code)
}
