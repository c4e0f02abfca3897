package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/holds"
	"ticketon/internal/sessions"
	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/constants"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeStore struct {
	values    map[string]string
	ttls      map[string]time.Duration
	counters  map[string]int64
	published []publishedEvent
}

type publishedEvent struct {
	channel string
	message string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:   make(map[string]string),
		ttls:     make(map[string]time.Duration),
		counters: make(map[string]int64),
	}
}

func (f *fakeStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeStore) TTL(_ context.Context, key string) (time.Duration, error) {
	if ttl, ok := f.ttls[key]; ok {
		return ttl, nil
	}
	return -2 * time.Second, nil
}

func (f *fakeStore) ScanByPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) IncrementAndExpire(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	f.counters[key]++
	return f.counters[key], ttl, nil
}

func (f *fakeStore) Publish(_ context.Context, channel, message string) error {
	f.published = append(f.published, publishedEvent{channel: channel, message: message})
	return nil
}

func (f *fakeStore) eventTypes() []string {
	var types []string
	for _, p := range f.published {
		event, err := DecodeEvent(p.message)
		if err == nil {
			types = append(types, event.Type)
		}
	}
	return types
}

type fakeCatalog struct {
	sessions map[uuid.UUID]*sessions.Session
	seats    map[uuid.UUID]*sessions.Seat
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		sessions: make(map[uuid.UUID]*sessions.Session),
		seats:    make(map[uuid.UUID]*sessions.Seat),
	}
}

func (f *fakeCatalog) GetSessionByID(_ context.Context, id uuid.UUID) (*sessions.Session, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, apperrors.ErrSessionNotFound
}

func (f *fakeCatalog) GetSeatByID(_ context.Context, id uuid.UUID) (*sessions.Seat, error) {
	if s, ok := f.seats[id]; ok {
		return s, nil
	}
	return nil, apperrors.ErrSeatNotFound
}

func (f *fakeCatalog) GetSeatsByIDs(_ context.Context, ids []uuid.UUID) ([]sessions.Seat, error) {
	var out []sessions.Seat
	for _, id := range ids {
		if s, ok := f.seats[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetSeatsBySessionID(_ context.Context, sessionID uuid.UUID) ([]sessions.Seat, error) {
	var out []sessions.Seat
	for _, s := range f.seats {
		if s.SessionID == sessionID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeBookings struct {
	byID       map[uuid.UUID]*bookings.Booking
	reserveErr error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{byID: make(map[uuid.UUID]*bookings.Booking)}
}

func (f *fakeBookings) GetBookingByID(_ context.Context, id uuid.UUID) (*bookings.Booking, error) {
	if b, ok := f.byID[id]; ok {
		return b, nil
	}
	return nil, apperrors.ErrBookingNotFound
}

func (f *fakeBookings) ReserveSeats(_ context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, expiresAt time.Time) ([]bookings.Booking, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	var created []bookings.Booking
	for _, seatID := range seatIDs {
		b := bookings.Booking{
			ID:        uuid.New(),
			SessionID: sessionID,
			SeatID:    seatID,
			UserID:    userID,
			Status:    string(bookings.StatusPending),
			ExpiresAt: &expiresAt,
		}
		f.byID[b.ID] = &b
		created = append(created, b)
	}
	return created, nil
}

func (f *fakeBookings) ConfirmBooking(_ context.Context, id uuid.UUID) (*bookings.Booking, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	b.Status = string(bookings.StatusConfirmed)
	b.ExpiresAt = nil
	return b, nil
}

func (f *fakeBookings) CancelBooking(_ context.Context, id uuid.UUID, reason string) (*bookings.Booking, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	b.Status = string(bookings.StatusCancelled)
	b.CancelReason = reason
	return b, nil
}

// ---- helpers ----

func testConfig() *config.Config {
	return &config.Config{
		Booking: config.BookingConfig{
			SelectionTTL:       5 * time.Minute,
			ReservationTTL:     10 * time.Minute,
			MaxSeatsPerBooking: 10,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:          true,
			WindowDuration:   60 * time.Second,
			SelectionsPerMin: 10,
		},
	}
}

type fixture struct {
	svc       *Service
	store     *fakeStore
	catalog   *fakeCatalog
	bookings  *fakeBookings
	sessionID uuid.UUID
	seatID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	catalog := newFakeCatalog()
	bookingStore := newFakeBookings()

	sessionID := uuid.New()
	seatID := uuid.New()
	catalog.sessions[sessionID] = &sessions.Session{
		ID:     sessionID,
		Status: string(sessions.SessionActive),
	}
	catalog.seats[seatID] = &sessions.Seat{
		ID:        seatID,
		SessionID: sessionID,
		Status:    string(sessions.SeatAvailable),
	}

	return &fixture{
		svc:       NewService(catalog, bookingStore, store, testConfig(), logger.New()),
		store:     store,
		catalog:   catalog,
		bookings:  bookingStore,
		sessionID: sessionID,
		seatID:    seatID,
	}
}

// ---- tests ----

func TestSelectFirstCallerWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)
	assert.False(t, result.Refreshed)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	_, err = f.svc.Select(ctx, f.sessionID, f.seatID, "user-b", "conn-b")
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeSeatAlreadySelected, appErr.Code)
	assert.Equal(t, f.seatID.String(), appErr.SeatID)

	// The loser's attempt must not have touched the hold
	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	raw, found, _ := f.store.Get(ctx, key)
	require.True(t, found)
	hold, err := holds.DecodeHold(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-a", hold.UserID)
}

func TestSelectSameUserRefreshes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)

	result, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a2")
	require.NoError(t, err)
	assert.True(t, result.Refreshed)

	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	raw, _, _ := f.store.Get(ctx, key)
	hold, err := holds.DecodeHold(raw)
	require.NoError(t, err)
	assert.Equal(t, "conn-a2", hold.ConnectionID)
	assert.Equal(t, 5*time.Minute, f.store.ttls[key])
}

func TestSelectRejectsInactiveSession(t *testing.T) {
	f := newFixture(t)
	f.catalog.sessions[f.sessionID].Status = string(sessions.SessionDraft)

	_, err := f.svc.Select(context.Background(), f.sessionID, f.seatID, "user-a", "conn-a")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
}

func TestSelectRejectsUnavailableSeat(t *testing.T) {
	f := newFixture(t)
	f.catalog.seats[f.seatID].Status = string(sessions.SeatOccupied)

	_, err := f.svc.Select(context.Background(), f.sessionID, f.seatID, "user-a", "conn-a")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeSeatNotAvailable, appErr.Code)
	assert.Equal(t, string(sessions.SeatOccupied), appErr.CurrentStatus)
}

func TestSelectRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key := constants.BuildRateLimitKey(constants.ActionSelectSeat, "user-a")
	f.store.counters[key] = 10 // budget already spent

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeRateLimitExceeded, appErr.Code)
	assert.Equal(t, 60, appErr.RetryAfter)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Release(ctx, f.sessionID, f.seatID, "user-a"))

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)
	require.NoError(t, f.svc.Release(ctx, f.sessionID, f.seatID, "user-a"))
	require.NoError(t, f.svc.Release(ctx, f.sessionID, f.seatID, "user-a"))
}

func TestReleaseRejectsForeignHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)

	err = f.svc.Release(ctx, f.sessionID, f.seatID, "user-b")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeSeatAlreadySelected, appErr.Code)
}

func TestReserveRejectsTooManySeats(t *testing.T) {
	f := newFixture(t)

	seatIDs := make([]uuid.UUID, 11)
	for i := range seatIDs {
		seatIDs[i] = uuid.New()
	}

	_, err := f.svc.Reserve(context.Background(), f.sessionID, seatIDs, uuid.New(), "conn-a")
	assert.ErrorIs(t, err, apperrors.ErrMaxSeatsExceeded)
}

func TestReserveWithoutPriorSelect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	// A seat nobody holds reserves directly; the catalog transaction
	// arbitrates any race.
	result, err := f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)
	require.Len(t, result.Bookings, 1)
	assert.Equal(t, string(bookings.StatusPending), result.Bookings[0].Status)

	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	raw, found, _ := f.store.Get(ctx, key)
	require.True(t, found)
	hold, err := holds.DecodeHold(raw)
	require.NoError(t, err)
	assert.True(t, hold.IsReserved())
}

func TestReserveRejectsForeignHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "intruder", "conn-x")
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeSeatAlreadySelected, appErr.Code)
}

func TestReserveUpgradesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)

	result, err := f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)
	require.Len(t, result.Bookings, 1)
	assert.Equal(t, string(bookings.StatusPending), result.Bookings[0].Status)

	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	raw, found, _ := f.store.Get(ctx, key)
	require.True(t, found)
	hold, err := holds.DecodeHold(raw)
	require.NoError(t, err)
	assert.True(t, hold.IsReserved())
	assert.Equal(t, result.Bookings[0].ID.String(), hold.BookingID)
	assert.Equal(t, 10*time.Minute, f.store.ttls[key])

	assert.Contains(t, f.store.eventTypes(), EventSeatReserved)
}

func TestReserveRejectsReservedHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)

	// A second reserve against the same seat must fail even for the owner
	_, err = f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeSeatNotAvailable, appErr.Code)
}

func TestConfirmDropsHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)
	result, err := f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)

	booking, err := f.svc.Confirm(ctx, result.Bookings[0].ID, "payment-1")
	require.NoError(t, err)
	assert.Equal(t, string(bookings.StatusConfirmed), booking.Status)

	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	_, found, _ := f.store.Get(ctx, key)
	assert.False(t, found)
	assert.Contains(t, f.store.eventTypes(), EventBookingConfirmed)
}

func TestCancelOnlyOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)
	result, err := f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, result.Bookings[0].ID, "someone-else")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeForbidden, appErr.Code)

	cancelled, err := f.svc.Cancel(ctx, result.Bookings[0].ID, userID.String())
	require.NoError(t, err)
	assert.Equal(t, string(bookings.StatusCancelled), cancelled.Status)
}

func TestCancelRejectsConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)
	result, err := f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, result.Bookings[0].ID, "payment-1")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, result.Bookings[0].ID, userID.String())
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeBookingNotPending, appErr.Code)
}

func TestCleanupConnectionKeepsReservedHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	// A second seat that stays a plain selection
	selectedSeat := uuid.New()
	f.catalog.seats[selectedSeat] = &sessions.Seat{
		ID:        selectedSeat,
		SessionID: f.sessionID,
		Status:    string(sessions.SeatAvailable),
	}

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, userID.String(), "conn-a")
	require.NoError(t, err)
	_, err = f.svc.Select(ctx, f.sessionID, selectedSeat, userID.String(), "conn-a")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.sessionID, []uuid.UUID{f.seatID}, userID, "conn-a")
	require.NoError(t, err)

	require.NoError(t, f.svc.CleanupConnection(ctx, f.sessionID, "conn-a", ReleaseReasonTimeout))

	// Reserved hold survives, plain selection is gone
	reservedKey := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	_, found, _ := f.store.Get(ctx, reservedKey)
	assert.True(t, found)

	selectedKey := constants.BuildSeatHoldKey(f.sessionID.String(), selectedSeat.String())
	_, found, _ = f.store.Get(ctx, selectedKey)
	assert.False(t, found)
}

func TestCleanupConnectionIgnoresOtherConnections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)

	require.NoError(t, f.svc.CleanupConnection(ctx, f.sessionID, "conn-b", ReleaseReasonDisconnect))

	key := constants.BuildSeatHoldKey(f.sessionID.String(), f.seatID.String())
	_, found, _ := f.store.Get(ctx, key)
	assert.True(t, found)
}

func TestSessionStateOverlaysHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hiddenSeat := uuid.New()
	f.catalog.seats[hiddenSeat] = &sessions.Seat{
		ID:        hiddenSeat,
		SessionID: f.sessionID,
		Status:    string(sessions.SeatHidden),
	}

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)

	state, err := f.svc.SessionState(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, f.seatID.String(), state[0].SeatID)
	assert.Equal(t, "SELECTED", state[0].Status)
	assert.Equal(t, "user-a", state[0].HeldBy)
}

func TestSessionStateRejectsInactiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.catalog.sessions[f.sessionID].Status = string(sessions.SessionDraft)
	_, err := f.svc.SessionState(ctx, f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)

	_, err = f.svc.SessionState(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestCleanupConnectionBroadcastsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.sessionID, f.seatID, "user-a", "conn-a")
	require.NoError(t, err)

	require.NoError(t, f.svc.CleanupConnection(ctx, f.sessionID, "conn-a", ReleaseReasonTimeout))

	var released *Event
	for _, p := range f.store.published {
		event, err := DecodeEvent(p.message)
		if err == nil && event.Type == EventSeatReleased {
			released = event
		}
	}
	require.NotNil(t, released)
	assert.Equal(t, ReleaseReasonTimeout, released.Data["reason"])
}
