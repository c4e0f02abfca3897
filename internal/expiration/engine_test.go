package expiration

import (
	"context"
	"testing"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/coordinator"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/constants"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	rows []bookings.ExpiredBooking
}

func (f *fakeExpirer) ExpireDuePending(_ context.Context, _ time.Time) ([]bookings.ExpiredBooking, error) {
	rows := f.rows
	f.rows = nil
	return rows, nil
}

type fakeLister struct {
	ids []uuid.UUID
}

func (f *fakeLister) ListActiveSessionIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.ids, nil
}

type fakeSweeper struct {
	values    map[string]string
	ttls      map[string]time.Duration
	deleted   []string
	published []string
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeSweeper) ScanByPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeSweeper) TTL(_ context.Context, key string) (time.Duration, error) {
	if ttl, ok := f.ttls[key]; ok {
		return ttl, nil
	}
	return -2, nil
}

func (f *fakeSweeper) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	delete(f.ttls, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeSweeper) Publish(_ context.Context, _ string, message string) error {
	f.published = append(f.published, message)
	return nil
}

func (f *fakeSweeper) eventTypes() []string {
	var types []string
	for _, msg := range f.published {
		if event, err := coordinator.DecodeEvent(msg); err == nil {
			types = append(types, event.Type)
		}
	}
	return types
}

func testConfig() *config.Config {
	return &config.Config{
		Booking: config.BookingConfig{
			ExpirationInterval: 30 * time.Second,
			OrphanScanEvery:    10,
		},
	}
}

func TestTickExpiresDueBookings(t *testing.T) {
	sessionID := uuid.New()
	seatID := uuid.New()
	row := bookings.ExpiredBooking{
		BookingID: uuid.New(),
		SeatID:    seatID,
		SessionID: sessionID,
		UserID:    uuid.New(),
	}

	sweeper := newFakeSweeper()
	key := constants.BuildSeatHoldKey(sessionID.String(), seatID.String())
	sweeper.values[key] = "{}"
	sweeper.ttls[key] = 2 * time.Minute

	engine := NewEngine(&fakeExpirer{rows: []bookings.ExpiredBooking{row}}, &fakeLister{}, sweeper, testConfig(), logger.New())
	engine.Tick(context.Background())

	assert.Contains(t, sweeper.deleted, key)
	types := sweeper.eventTypes()
	assert.Contains(t, types, coordinator.EventSeatReleased)
	assert.Contains(t, types, coordinator.EventBookingCancelled)

	for _, msg := range sweeper.published {
		event, err := coordinator.DecodeEvent(msg)
		require.NoError(t, err)
		if event.Type == coordinator.EventSeatReleased {
			assert.Equal(t, coordinator.ReleaseReasonTimeout, event.Data["reason"])
		}
	}
}

func TestOrphanScanRunsEveryNthTick(t *testing.T) {
	sessionID := uuid.New()
	sweeper := newFakeSweeper()

	orphanKey := constants.BuildSeatHoldKey(sessionID.String(), uuid.New().String())
	sweeper.values[orphanKey] = "{}"
	sweeper.ttls[orphanKey] = -1 // no expiry

	healthyKey := constants.BuildSeatHoldKey(sessionID.String(), uuid.New().String())
	sweeper.values[healthyKey] = "{}"
	sweeper.ttls[healthyKey] = 4 * time.Minute

	cfg := testConfig()
	cfg.Booking.OrphanScanEvery = 2

	engine := NewEngine(&fakeExpirer{}, &fakeLister{ids: []uuid.UUID{sessionID}}, sweeper, cfg, logger.New())

	engine.Tick(context.Background())
	assert.Empty(t, sweeper.deleted, "first tick must not scan")

	engine.Tick(context.Background())
	assert.Contains(t, sweeper.deleted, orphanKey)
	assert.NotContains(t, sweeper.deleted, healthyKey)
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Booking.ExpirationInterval = 10 * time.Millisecond

	engine := NewEngine(&fakeExpirer{}, &fakeLister{}, newFakeSweeper(), cfg, logger.New())
	engine.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	engine.Stop()
}
