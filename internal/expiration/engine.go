package expiration

import (
	"context"
	"sync"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/coordinator"
	"ticketon/internal/shared/config"
	"ticketon/internal/shared/constants"
	"ticketon/pkg/logger"

	"github.com/google/uuid"
)

// BookingExpirer demotes due PENDING bookings. Satisfied by
// bookings.Repository.
type BookingExpirer interface {
	ExpireDuePending(ctx context.Context, now time.Time) ([]bookings.ExpiredBooking, error)
}

// SessionLister enumerates sessions whose holds the orphan scan covers.
// Satisfied by sessions.Repository.
type SessionLister interface {
	ListActiveSessionIDs(ctx context.Context) ([]uuid.UUID, error)
}

// HoldSweeper is the slice of the hold store the engine needs. Satisfied by
// holds.Store.
type HoldSweeper interface {
	ScanByPrefix(ctx context.Context, prefix string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, channel, message string) error
}

// ExpiryNotifier receives expired bookings for the downstream event
// stream. Satisfied by notifications.Service.
type ExpiryNotifier interface {
	BookingExpired(ctx context.Context, row bookings.ExpiredBooking)
}

// Engine is the background sweep that expires overdue reservations and
// garbage-collects orphaned hold keys. Safe to run on every replica: the
// catalog demotion re-checks status under a row lock, so two engines
// sweeping the same row is a no-op for one of them.
type Engine struct {
	bookings BookingExpirer
	sessions SessionLister
	store    HoldSweeper
	cfg      *config.Config
	log      *logger.Logger
	notifier ExpiryNotifier // optional booking event stream

	tickMu    sync.Mutex
	tickCount int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewEngine(bookingStore BookingExpirer, sessionStore SessionLister, store HoldSweeper, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		bookings: bookingStore,
		sessions: sessionStore,
		store:    store,
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetNotifier attaches the booking event stream. Optional; nil means no
// stream.
func (e *Engine) SetNotifier(n ExpiryNotifier) {
	e.notifier = n
}

// Start launches the sweep loop in a background goroutine
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
	e.log.InfoWithContext(ctx, "Expiration Engine Started", map[string]interface{}{
		"interval": e.cfg.Booking.ExpirationInterval.String(),
	})
}

// Stop signals the loop to exit and waits for the in-flight tick
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.Booking.ExpirationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one sweep. If the previous sweep is still in flight the tick is
// skipped rather than stacked.
func (e *Engine) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		e.log.WarnContext(ctx, "expiration tick skipped: previous tick still running")
		return
	}
	defer e.tickMu.Unlock()

	start := time.Now()

	e.expireBookings(ctx)

	e.tickCount++
	if e.cfg.Booking.OrphanScanEvery > 0 && e.tickCount%e.cfg.Booking.OrphanScanEvery == 0 {
		e.sweepOrphans(ctx)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		e.log.LogSlowTick(ctx, elapsed)
	}
}

func (e *Engine) expireBookings(ctx context.Context) {
	expired, err := e.bookings.ExpireDuePending(ctx, time.Now())
	if err != nil {
		e.log.ErrorWithContext(ctx, "expiration sweep failed", err, nil)
		return
	}

	for i := range expired {
		row := expired[i]
		key := constants.BuildSeatHoldKey(row.SessionID.String(), row.SeatID.String())
		if err := e.store.Delete(ctx, key); err != nil {
			e.log.ErrorWithContext(ctx, "failed to drop expired hold", err, map[string]interface{}{
				"booking_id": row.BookingID.String(),
			})
		}

		e.publish(ctx, row.SessionID.String(), coordinator.NewSeatReleasedEvent(
			row.SessionID.String(), row.SeatID.String(), row.UserID.String(), coordinator.ReleaseReasonTimeout))
		e.publish(ctx, row.SessionID.String(), coordinator.NewBookingCancelledEvent(
			row.SessionID.String(), row.SeatID.String(), row.UserID.String(), row.BookingID.String(), coordinator.ReleaseReasonTimeout))
		if e.notifier != nil {
			e.notifier.BookingExpired(ctx, row)
		}
	}

	if len(expired) > 0 {
		e.log.InfoWithContext(ctx, "Expired Bookings", map[string]interface{}{
			"count": len(expired),
		})
	}
}

// sweepOrphans deletes hold keys that lost their TTL. They should not
// exist; a key without expiry would hold a seat forever.
func (e *Engine) sweepOrphans(ctx context.Context) {
	sessionIDs, err := e.sessions.ListActiveSessionIDs(ctx)
	if err != nil {
		e.log.ErrorWithContext(ctx, "orphan scan failed to list sessions", err, nil)
		return
	}

	removed := 0
	for _, sessionID := range sessionIDs {
		prefix := constants.BuildSessionSeatPrefix(sessionID.String())
		keys, err := e.store.ScanByPrefix(ctx, prefix)
		if err != nil {
			e.log.ErrorWithContext(ctx, "orphan scan failed", err, map[string]interface{}{
				"session_id": sessionID.String(),
			})
			continue
		}

		for _, key := range keys {
			ttl, err := e.store.TTL(ctx, key)
			if err != nil {
				continue
			}
			// -1 is a key without expiry; -2 means it vanished mid-scan
			if ttl != -1*time.Second && ttl != -1 {
				continue
			}
			if err := e.store.Delete(ctx, key); err != nil {
				continue
			}
			removed++
			e.log.WarnContext(ctx, "removed orphaned hold key", "key", key)
		}
	}

	if removed > 0 {
		e.log.InfoWithContext(ctx, "Orphan Scan Complete", map[string]interface{}{
			"removed": removed,
		})
	}
}

func (e *Engine) publish(ctx context.Context, sessionID string, event *coordinator.Event) {
	encoded, err := event.Encode()
	if err != nil {
		return
	}
	if err := e.store.Publish(ctx, constants.BuildSessionChannel(sessionID), encoded); err != nil {
		e.log.ErrorWithContext(ctx, "failed to publish expiry event", err, map[string]interface{}{
			"type": event.Type,
		})
	}
}
