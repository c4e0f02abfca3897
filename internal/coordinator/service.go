package coordinator

import (
	"context"
	"strings"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/holds"
	"ticketon/internal/sessions"
	"ticketon/internal/shared/apperrors"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/constants"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
)

// Service coordinates seat state across the catalog (authoritative) and
// the hold store (ephemeral). Every mutation publishes an event on the
// session channel so all workers fan it out.
type Service struct {
	catalog  Catalog
	bookings BookingStore
	store    HoldStore
	cfg      *config.Config
	log      *logger.Logger
	notifier Notifier // optional booking event stream
}

func NewService(catalog Catalog, bookingStore BookingStore, store HoldStore, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		catalog:  catalog,
		bookings: bookingStore,
		store:    store,
		cfg:      cfg,
		log:      log,
	}
}

// SetNotifier attaches the booking event stream. Optional; nil means no
// stream.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SelectResult reports the outcome of a seat selection
type SelectResult struct {
	SeatID    string    `json:"seat_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Refreshed bool      `json:"refreshed"`
}

// ReserveResult reports the outcome of a reservation
type ReserveResult struct {
	Bookings  []bookings.Booking `json:"bookings"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// SeatState is one entry of a session snapshot: the catalog status with the
// live hold overlaid.
type SeatState struct {
	SeatID string `json:"seat_id"`
	Status string `json:"status"`
	HeldBy string `json:"held_by,omitempty"`
}

// Select places a hold on one seat. SETNX decides races: exactly one of two
// concurrent callers wins the key. A repeat select by the holder refreshes
// the TTL instead of failing.
func (s *Service) Select(ctx context.Context, sessionID, seatID uuid.UUID, userID, connectionID string) (*SelectResult, error) {
	if err := s.RateLimitCheck(ctx, constants.ActionSelectSeat, userID); err != nil {
		return nil, err
	}

	session, err := s.catalog.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sessions.SessionStatus(session.Status).AcceptsBookings() {
		return nil, apperrors.ErrSessionNotActive
	}

	seat, err := s.catalog.GetSeatByID(ctx, seatID)
	if err != nil {
		return nil, err
	}
	if seat.SessionID != sessionID {
		return nil, apperrors.ErrSeatNotFound
	}
	if !sessions.SeatStatus(seat.Status).Bookable() {
		return nil, apperrors.Conflict(apperrors.CodeSeatNotAvailable, "seat is not available").
			WithSeat(seatID.String()).
			WithCurrentStatus(seat.Status)
	}

	hold := holds.Hold{
		UserID:       userID,
		ConnectionID: connectionID,
		TakenAt:      time.Now().UTC(),
	}
	encoded, err := hold.Encode()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	key := constants.BuildSeatHoldKey(sessionID.String(), seatID.String())
	ttl := s.cfg.Booking.SelectionTTL

	won, err := s.store.SetIfAbsent(ctx, key, encoded, ttl)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	refreshed := false
	if !won {
		raw, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if found {
			existing, err := holds.DecodeHold(raw)
			if err != nil {
				return nil, apperrors.Internal(err)
			}
			if !existing.OwnedBy(userID) || existing.IsReserved() {
				return nil, apperrors.Conflict(apperrors.CodeSeatAlreadySelected, "seat is already selected by another user").
					WithSeat(seatID.String())
			}
			// Same user re-selecting their own hold: keep the original
			// connection id current and restart the clock.
			existing.ConnectionID = connectionID
			encoded, err = existing.Encode()
			if err != nil {
				return nil, apperrors.Internal(err)
			}
			if err := s.store.SetWithTTL(ctx, key, encoded, ttl); err != nil {
				return nil, apperrors.Internal(err)
			}
			refreshed = true
			s.log.InfoWithContext(ctx, "Selection Refreshed", map[string]interface{}{
				"session_id": sessionID.String(),
				"seat_id":    seatID.String(),
				"user_id":    userID,
			})
		} else {
			// Hold expired between SETNX and GET; retry once
			won, err = s.store.SetIfAbsent(ctx, key, encoded, ttl)
			if err != nil {
				return nil, apperrors.Internal(err)
			}
			if !won {
				return nil, apperrors.Conflict(apperrors.CodeSeatAlreadySelected, "seat is already selected by another user").
					WithSeat(seatID.String())
			}
		}
	}

	expiresAt := time.Now().UTC().Add(ttl)
	if !refreshed {
		s.log.LogSeatSelected(ctx, sessionID.String(), seatID.String(), userID)
	}
	s.publish(ctx, sessionID.String(), NewSeatSelectedEvent(sessionID.String(), seatID.String(), userID, expiresAt))

	return &SelectResult{
		SeatID:    seatID.String(),
		ExpiresAt: expiresAt,
		Refreshed: refreshed,
	}, nil
}

// Release drops the caller's own unreserved hold. Releasing a seat that is
// not held is a no-op so retries after a timeout stay safe.
func (s *Service) Release(ctx context.Context, sessionID, seatID uuid.UUID, userID string) error {
	key := constants.BuildSeatHoldKey(sessionID.String(), seatID.String())

	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !found {
		return nil
	}

	hold, err := holds.DecodeHold(raw)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !hold.OwnedBy(userID) {
		return apperrors.Conflict(apperrors.CodeSeatAlreadySelected, "seat is held by another user").
			WithSeat(seatID.String())
	}
	if hold.IsReserved() {
		return apperrors.Conflict(apperrors.CodeConflict, "seat is reserved; cancel the booking instead").
			WithSeat(seatID.String())
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return apperrors.Internal(err)
	}

	s.publish(ctx, sessionID.String(), NewSeatReleasedEvent(sessionID.String(), seatID.String(), userID, ReleaseReasonManual))
	return nil
}

// Reserve converts the caller's selections into PENDING bookings. All
// requested seats must currently be held by the caller; the catalog
// transaction is all-or-nothing, and on success each hold is rewritten with
// the booking id and the longer reservation TTL.
func (s *Service) Reserve(ctx context.Context, sessionID uuid.UUID, seatIDs []uuid.UUID, userID uuid.UUID, connectionID string) (*ReserveResult, error) {
	if err := s.RateLimitCheck(ctx, constants.ActionReserveSeats, userID.String()); err != nil {
		return nil, err
	}

	if len(seatIDs) == 0 {
		return nil, apperrors.Validation("at least one seat is required")
	}
	if len(seatIDs) > s.cfg.Booking.MaxSeatsPerBooking {
		return nil, apperrors.ErrMaxSeatsExceeded
	}
	if hasDuplicates(seatIDs) {
		return nil, apperrors.Validation("duplicate seat ids")
	}

	session, err := s.catalog.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sessions.SessionStatus(session.Status).AcceptsBookings() {
		return nil, apperrors.ErrSessionNotActive
	}

	// No seat may be held by anyone else. A seat without a hold is fine:
	// it goes straight to reservation and the row-locked catalog
	// transaction arbitrates any race.
	now := time.Now().UTC()
	heldAt := make(map[uuid.UUID]time.Time, len(seatIDs))
	for _, seatID := range seatIDs {
		key := constants.BuildSeatHoldKey(sessionID.String(), seatID.String())
		raw, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if !found {
			heldAt[seatID] = now
			continue
		}
		hold, err := holds.DecodeHold(raw)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if !hold.OwnedBy(userID.String()) {
			return nil, apperrors.Conflict(apperrors.CodeSeatAlreadySelected, "seat is selected by another user").
				WithSeat(seatID.String())
		}
		if hold.IsReserved() {
			return nil, apperrors.Conflict(apperrors.CodeSeatNotAvailable, "seat is already reserved").
				WithSeat(seatID.String()).
				WithCurrentStatus(string(sessions.SeatReserved))
		}
		heldAt[seatID] = hold.TakenAt
	}

	expiresAt := time.Now().UTC().Add(s.cfg.Booking.ReservationTTL)
	created, err := s.bookings.ReserveSeats(ctx, sessionID, seatIDs, userID, expiresAt)
	if err != nil {
		return nil, err
	}

	// Upgrade the holds so the orphan scan and cleanup know these seats are
	// backed by bookings.
	seatStrings := make([]string, 0, len(created))
	bookingStrings := make([]string, 0, len(created))
	for i := range created {
		hold := holds.Hold{
			UserID:       userID.String(),
			ConnectionID: connectionID,
			TakenAt:      heldAt[created[i].SeatID],
			BookingID:    created[i].ID.String(),
			ExpiresAt:    &expiresAt,
		}
		encoded, err := hold.Encode()
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		key := constants.BuildSeatHoldKey(sessionID.String(), created[i].SeatID.String())
		if err := s.store.SetWithTTL(ctx, key, encoded, s.cfg.Booking.ReservationTTL); err != nil {
			s.log.ErrorWithContext(ctx, "failed to upgrade hold", err, map[string]interface{}{
				"seat_id": created[i].SeatID.String(),
			})
		}
		seatStrings = append(seatStrings, created[i].SeatID.String())
		bookingStrings = append(bookingStrings, created[i].ID.String())
	}

	s.log.LogSeatsReserved(ctx, bookingStrings[0], sessionID.String(), userID.String(), len(created))
	s.publish(ctx, sessionID.String(), NewSeatsReservedEvent(sessionID.String(), userID.String(), seatStrings, bookingStrings, expiresAt))
	if s.notifier != nil {
		s.notifier.BookingsReserved(ctx, created)
	}

	return &ReserveResult{Bookings: created, ExpiresAt: expiresAt}, nil
}

// Confirm finalizes a paid booking: catalog flips to CONFIRMED/OCCUPIED,
// the hold is dropped, and the room hears about it. Idempotent through the
// repository.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID, paymentID string) (*bookings.Booking, error) {
	booking, err := s.bookings.ConfirmBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	key := constants.BuildSeatHoldKey(booking.SessionID.String(), booking.SeatID.String())
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.ErrorWithContext(ctx, "failed to drop hold after confirm", err, map[string]interface{}{
			"booking_id": bookingID.String(),
		})
	}

	s.log.LogBookingConfirmed(ctx, bookingID.String(), paymentID)
	s.publish(ctx, booking.SessionID.String(), NewBookingConfirmedEvent(
		booking.SessionID.String(), booking.SeatID.String(), booking.UserID.String(), booking.ID.String()))
	if s.notifier != nil {
		s.notifier.BookingConfirmed(ctx, booking)
	}

	return booking, nil
}

// Cancel aborts the caller's own PENDING booking and frees the seat.
// Confirmed bookings are cancelled through the refund path, not here.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, userID string) (*bookings.Booking, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && booking.UserID.String() != userID {
		return nil, apperrors.Forbidden("booking belongs to another user")
	}
	if bookings.Status(booking.Status) != bookings.StatusPending {
		return nil, apperrors.Conflict(apperrors.CodeBookingNotPending, "only pending bookings can be cancelled").
			WithCurrentStatus(booking.Status)
	}

	cancelled, err := s.bookings.CancelBooking(ctx, bookingID, "user")
	if err != nil {
		return nil, err
	}

	s.releaseAfterCancel(ctx, cancelled, ReleaseReasonCancelled)
	return cancelled, nil
}

// CancelByProvider aborts a booking on behalf of the payment layer, either
// a full refund or a provider-side transaction cancellation. The PENDING
// gate does not apply: refunds cancel CONFIRMED bookings.
func (s *Service) CancelByProvider(ctx context.Context, bookingID uuid.UUID, reason string) (*bookings.Booking, error) {
	cancelled, err := s.bookings.CancelBooking(ctx, bookingID, reason)
	if err != nil {
		return nil, err
	}
	releaseReason := ReleaseReasonCancelled
	if reason == "refund" {
		releaseReason = ReleaseReasonRefund
	}
	s.releaseAfterCancel(ctx, cancelled, releaseReason)
	return cancelled, nil
}

func (s *Service) releaseAfterCancel(ctx context.Context, booking *bookings.Booking, reason string) {
	key := constants.BuildSeatHoldKey(booking.SessionID.String(), booking.SeatID.String())
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.ErrorWithContext(ctx, "failed to drop hold after cancel", err, map[string]interface{}{
			"booking_id": booking.ID.String(),
		})
	}

	s.log.LogBookingCancelled(ctx, booking.ID.String(), reason)
	s.publish(ctx, booking.SessionID.String(), NewBookingCancelledEvent(
		booking.SessionID.String(), booking.SeatID.String(), booking.UserID.String(), booking.ID.String(), reason))
	s.publish(ctx, booking.SessionID.String(), NewSeatReleasedEvent(
		booking.SessionID.String(), booking.SeatID.String(), booking.UserID.String(), reason))
	if s.notifier != nil {
		s.notifier.BookingCancelled(ctx, booking, reason)
	}
}

// RateLimitCheck bumps the per-user counter for the action and rejects once
// the window budget is spent. The counter is incremented first, so the
// request that crosses the limit is the one refused.
func (s *Service) RateLimitCheck(ctx context.Context, action, userID string) error {
	if !s.cfg.RateLimit.Enabled {
		return nil
	}

	key := constants.BuildRateLimitKey(action, userID)
	count, window, err := s.store.IncrementAndExpire(ctx, key, s.cfg.RateLimit.WindowDuration)
	if err != nil {
		// Redis trouble should not block bookings
		s.log.ErrorWithContext(ctx, "rate limit check failed", err, map[string]interface{}{
			"action": action,
		})
		return nil
	}

	if count > int64(s.cfg.RateLimit.SelectionsPerMin) {
		s.log.LogRateLimitExceeded(ctx, userID, action)
		return apperrors.RateLimited(int(window.Seconds()))
	}
	return nil
}

// CleanupConnection drops every unreserved hold the closed connection
// owned, broadcasting each release with the given reason. Reserved holds
// survive the disconnect: the booking keeps the seat until payment or
// expiry.
func (s *Service) CleanupConnection(ctx context.Context, sessionID uuid.UUID, connectionID, reason string) error {
	prefix := constants.BuildSessionSeatPrefix(sessionID.String())
	keys, err := s.store.ScanByPrefix(ctx, prefix)
	if err != nil {
		return apperrors.Internal(err)
	}

	for _, key := range keys {
		raw, found, err := s.store.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		hold, err := holds.DecodeHold(raw)
		if err != nil {
			continue
		}
		if hold.ConnectionID != connectionID || hold.IsReserved() {
			continue
		}

		if err := s.store.Delete(ctx, key); err != nil {
			continue
		}
		seatID := strings.TrimPrefix(key, prefix)
		s.publish(ctx, sessionID.String(), NewSeatReleasedEvent(sessionID.String(), seatID, hold.UserID, reason))
	}
	return nil
}

// SessionState builds the snapshot a newly joined connection receives: the
// catalog status of every visible seat with live holds overlaid. Only
// sessions open for booking have a joinable room.
func (s *Service) SessionState(ctx context.Context, sessionID uuid.UUID) ([]SeatState, error) {
	session, err := s.catalog.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sessions.SessionStatus(session.Status).AcceptsBookings() {
		return nil, apperrors.ErrSessionNotActive
	}

	seats, err := s.catalog.GetSeatsBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prefix := constants.BuildSessionSeatPrefix(sessionID.String())
	keys, err := s.store.ScanByPrefix(ctx, prefix)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	heldBy := make(map[string]string, len(keys))
	for _, key := range keys {
		raw, found, err := s.store.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		hold, err := holds.DecodeHold(raw)
		if err != nil {
			continue
		}
		heldBy[strings.TrimPrefix(key, prefix)] = hold.UserID
	}

	state := make([]SeatState, 0, len(seats))
	for i := range seats {
		if seats[i].Status == string(sessions.SeatHidden) {
			continue
		}
		entry := SeatState{
			SeatID: seats[i].ID.String(),
			Status: seats[i].Status,
		}
		if owner, ok := heldBy[entry.SeatID]; ok && seats[i].Status == string(sessions.SeatAvailable) {
			entry.Status = "SELECTED"
			entry.HeldBy = owner
		}
		state = append(state, entry)
	}
	return state, nil
}

func (s *Service) publish(ctx context.Context, sessionID string, event *Event) {
	encoded, err := event.Encode()
	if err != nil {
		s.log.ErrorWithContext(ctx, "failed to encode event", err, map[string]interface{}{
			"type": event.Type,
		})
		return
	}
	if err := s.store.Publish(ctx, constants.BuildSessionChannel(sessionID), encoded); err != nil {
		s.log.ErrorWithContext(ctx, "failed to publish event", err, map[string]interface{}{
			"type": event.Type,
		})
	}
}

func hasDuplicates(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
