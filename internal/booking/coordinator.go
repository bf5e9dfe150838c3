package booking

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/transconnect/booking-engine/internal/domain"
	"github.com/transconnect/booking-engine/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonInsufficientSeats = "insufficient_seats"
	ReasonTripNotBookable   = "trip_not_bookable"

	defaultRetryLimit = 5
	defaultBackoff    = 10 * time.Millisecond
)

type BookingRequest struct {
	TripID           uuid.UUID
	Seats            int
	IdempotencyToken string
}

type BookingResult struct {
	Reservation domain.Reservation
	Status      domain.ReservationStatus
	Reason      string
}

// Coordinator is the only mutator of seat counts. It turns a booking request
// into exactly one ledger row per idempotency token, retrying the conditional
// seat update against fresh state when it loses to a concurrent booking.
type Coordinator struct {
	inv        InventoryStore
	ledger     ReservationLedger
	sink       EventSink
	audit      AuditLogger
	logger     observability.Logger
	retryLimit int
	backoff    time.Duration
	now        func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithEventSink(sink EventSink) CoordinatorOption {
	return func(c *Coordinator) { c.sink = sink }
}

func WithAuditLogger(audit AuditLogger) CoordinatorOption {
	return func(c *Coordinator) { c.audit = audit }
}

// WithRetryLimit bounds the optimistic retry loop.
func WithRetryLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.retryLimit = n
		}
	}
}

// WithBackoff sets the base delay between retry attempts. Zero disables the
// delay entirely.
func WithBackoff(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.backoff = d }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(inv InventoryStore, ledger ReservationLedger, logger observability.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		inv:        inv,
		ledger:     ledger,
		logger:     logger,
		retryLimit: defaultRetryLimit,
		backoff:    defaultBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Book(ctx context.Context, req BookingRequest) (BookingResult, error) {
	timer := prometheus.NewTimer(observability.BookingDuration)
	defer timer.ObserveDuration()

	if req.Seats <= 0 || req.IdempotencyToken == "" || req.TripID == uuid.Nil {
		return BookingResult{}, domain.ErrInvalidRequest
	}

	existing, err := c.ledger.FindByToken(ctx, req.IdempotencyToken)
	if err != nil {
		return BookingResult{}, err
	}
	if existing != nil {
		return resultFrom(*existing), nil
	}

	trip, err := c.inv.GetTrip(ctx, req.TripID)
	if err != nil {
		return BookingResult{}, err
	}

	res := domain.NewReservation(req.TripID, req.IdempotencyToken, req.Seats, c.now())

	if !trip.Bookable() {
		return c.reject(ctx, res, ReasonTripNotBookable)
	}

	for attempt := 0; attempt < c.retryLimit; attempt++ {
		if attempt > 0 {
			observability.ReserveConflicts.Inc()
			if err := c.sleep(ctx, attempt); err != nil {
				return BookingResult{}, err
			}
		}

		avail, err := c.inv.GetAvailability(ctx, req.TripID)
		if err != nil {
			return BookingResult{}, err
		}
		if avail.Available < req.Seats {
			return c.reject(ctx, res, ReasonInsufficientSeats)
		}

		err = c.inv.TryReserve(ctx, req.TripID, req.Seats, avail.ReservedSeats)
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrSerializationFailure) {
			continue
		}
		if err != nil {
			return BookingResult{}, err
		}

		if err := res.Decide(domain.ReservationConfirmed, c.now()); err != nil {
			return BookingResult{}, err
		}
		if err := c.ledger.Record(ctx, res); err != nil {
			// The seats are committed but the row is not; give them back so
			// reserved_seats keeps matching the sum of confirmed reservations.
			if relErr := c.inv.Release(ctx, req.TripID, req.Seats); relErr != nil {
				c.logger.WithField("trip_id", req.TripID.String()).Error("seat release after failed record: ", relErr)
			}
			if errors.Is(err, domain.ErrDuplicateToken) {
				// A concurrent retry of the same token recorded first.
				return c.storedOutcome(ctx, req.IdempotencyToken)
			}
			return BookingResult{}, err
		}

		observability.BookingsTotal.WithLabelValues("confirmed").Inc()
		c.emit(ctx, "booking.confirmed", res.ID, map[string]interface{}{
			"reservation_id": res.ID,
			"trip_id":        res.TripID,
			"seats":          res.RequestedSeats,
		})
		c.auditLog(ctx, "booking.confirmed", map[string]interface{}{
			"reservation_id": res.ID,
			"trip_id":        res.TripID,
			"seats":          res.RequestedSeats,
			"token":          res.IdempotencyToken,
		})
		return resultFrom(res), nil
	}

	observability.BookingsTotal.WithLabelValues("contention").Inc()
	// No ledger row: the token stays free so the caller's later retry can
	// still book. The audit trail keeps the failed attempt.
	c.auditLog(ctx, "booking.contention", map[string]interface{}{
		"trip_id": req.TripID,
		"seats":   req.Seats,
		"token":   req.IdempotencyToken,
	})
	return BookingResult{}, domain.ErrContention
}

// CancelReservation releases a confirmed reservation's seats. The status
// transition and the release commit together, so a failed cancel leaves the
// reservation confirmed and retryable. A second successful call returns
// ErrInvalidState.
func (c *Coordinator) CancelReservation(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	var res domain.Reservation
	for attempt := 0; ; attempt++ {
		var err error
		res, err = c.ledger.CancelConfirmed(ctx, reservationID)
		if errors.Is(err, domain.ErrSerializationFailure) && attempt+1 < c.retryLimit {
			if err := c.sleep(ctx, attempt+1); err != nil {
				return domain.Reservation{}, err
			}
			continue
		}
		if err != nil {
			return domain.Reservation{}, err
		}
		break
	}

	observability.CancellationsTotal.Inc()
	c.emit(ctx, "booking.cancelled", res.ID, map[string]interface{}{
		"reservation_id": res.ID,
		"trip_id":        res.TripID,
		"seats":          res.RequestedSeats,
	})
	c.auditLog(ctx, "booking.cancelled", map[string]interface{}{
		"reservation_id": res.ID,
		"trip_id":        res.TripID,
	})
	return res, nil
}

// CancelTrip cancels the trip and every confirmed reservation on it, releasing
// their seats. Calling it on an already cancelled trip only sweeps whatever
// confirmed reservations remain, which makes the sweeper idempotent.
func (c *Coordinator) CancelTrip(ctx context.Context, tripID uuid.UUID) (int, error) {
	trip, err := c.inv.GetTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	if trip.Status != domain.TripCancelled {
		if err := c.inv.UpdateTripStatus(ctx, tripID, domain.TripCancelled); err != nil {
			return 0, err
		}
	}

	confirmed, err := c.ledger.ListConfirmedByTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, res := range confirmed {
		res := res
		g.Go(func() error {
			_, err := c.ledger.CancelConfirmed(gctx, res.ID)
			if errors.Is(err, domain.ErrInvalidState) {
				// Lost a race with a direct cancellation; its seats are
				// already released.
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	c.emit(ctx, "trip.cancelled", tripID, map[string]interface{}{
		"trip_id":  tripID,
		"released": len(confirmed),
	})
	c.auditLog(ctx, "trip.cancelled", map[string]interface{}{
		"trip_id":  tripID,
		"released": len(confirmed),
	})
	return len(confirmed), nil
}

func (c *Coordinator) reject(ctx context.Context, res domain.Reservation, reason string) (BookingResult, error) {
	if err := res.Decide(domain.ReservationRejected, c.now()); err != nil {
		return BookingResult{}, err
	}
	res.Reason = reason
	if err := c.ledger.Record(ctx, res); err != nil {
		if errors.Is(err, domain.ErrDuplicateToken) {
			return c.storedOutcome(ctx, res.IdempotencyToken)
		}
		return BookingResult{}, err
	}
	observability.BookingsTotal.WithLabelValues("rejected").Inc()
	c.emit(ctx, "booking.rejected", res.ID, map[string]interface{}{
		"reservation_id": res.ID,
		"trip_id":        res.TripID,
		"reason":         reason,
	})
	c.auditLog(ctx, "booking.rejected", map[string]interface{}{
		"reservation_id": res.ID,
		"trip_id":        res.TripID,
		"reason":         reason,
	})
	return resultFrom(res), nil
}

func (c *Coordinator) storedOutcome(ctx context.Context, token string) (BookingResult, error) {
	existing, err := c.ledger.FindByToken(ctx, token)
	if err != nil {
		return BookingResult{}, err
	}
	if existing == nil {
		// The duplicate row vanished between the insert failure and this read.
		return BookingResult{}, domain.ErrContention
	}
	return resultFrom(*existing), nil
}

// sleep applies jittered exponential backoff between retry attempts.
func (c *Coordinator) sleep(ctx context.Context, attempt int) error {
	if c.backoff <= 0 {
		return nil
	}
	d := c.backoff * time.Duration(1<<(attempt-1))
	d += time.Duration(rand.Int63n(int64(c.backoff)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *Coordinator) emit(ctx context.Context, eventType string, aggregateID uuid.UUID, payload map[string]interface{}) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Emit(ctx, eventType, aggregateID, payload); err != nil {
		c.logger.WithField("event_type", eventType).Error("event emit: ", err)
	}
}

func (c *Coordinator) auditLog(ctx context.Context, action string, data map[string]interface{}) {
	if c.audit == nil {
		return
	}
	if err := c.audit.LogEvent(ctx, action, data); err != nil {
		c.logger.WithField("action", action).Error("audit log: ", err)
	}
}

func resultFrom(res domain.Reservation) BookingResult {
	return BookingResult{Reservation: res, Status: res.Status, Reason: res.Reason}
}
