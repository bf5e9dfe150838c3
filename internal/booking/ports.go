package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transconnect/booking-engine/internal/domain"
)

// Availability is a point-in-time snapshot of a trip's seat counts.
type Availability struct {
	TripID        uuid.UUID
	TotalSeats    int
	ReservedSeats int
	Available     int
}

// TripFilter narrows a trip search. Nil fields are no-ops; supplied fields
// are conjunctive.
type TripFilter struct {
	RouteID  *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	MinSeats int
}

// InventoryStore is the single source of truth for seat counts. TryReserve is
// the only seat-incrementing primitive; Release the only decrementing one.
type InventoryStore interface {
	CreateTrip(ctx context.Context, trip domain.Trip) error
	GetTrip(ctx context.Context, tripID uuid.UUID) (domain.Trip, error)
	GetAvailability(ctx context.Context, tripID uuid.UUID) (Availability, error)

	// TryReserve adds seatDelta to ReservedSeats only if the stored value
	// still equals expectedReserved and the total capacity holds. Returns
	// domain.ErrConflict when the expectation is stale.
	TryReserve(ctx context.Context, tripID uuid.UUID, seatDelta, expectedReserved int) error

	// Release subtracts seatDelta from ReservedSeats, clamped at zero.
	Release(ctx context.Context, tripID uuid.UUID, seatDelta int) error

	// UpdateTripStatus enforces the forward-only trip status machine.
	UpdateTripStatus(ctx context.Context, tripID uuid.UUID, status domain.TripStatus) error

	ListTrips(ctx context.Context, filter TripFilter) ([]domain.Trip, error)
}

// ReservationLedger is the durable, idempotent record of booking decisions.
type ReservationLedger interface {
	FindByToken(ctx context.Context, token string) (*domain.Reservation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)

	// Record inserts a decided reservation. Returns domain.ErrDuplicateToken
	// when the token is already present; the caller falls back to FindByToken.
	Record(ctx context.Context, res domain.Reservation) error

	// UpdateStatus enforces the reservation status machine.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error

	// CancelConfirmed moves a confirmed reservation to CANCELLED and returns
	// its seats to the trip in one atomic step; a failure leaves both sides
	// untouched. ErrNotFound on unknown id, ErrInvalidState when the
	// reservation is not confirmed.
	CancelConfirmed(ctx context.Context, id uuid.UUID) (domain.Reservation, error)

	ListConfirmedByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Reservation, error)
}

// EventSink receives decided booking outcomes. Sinks do not participate in the
// booking transaction; a failed emit is logged, never surfaced to the caller.
type EventSink interface {
	Emit(ctx context.Context, eventType string, aggregateID uuid.UUID, payload map[string]interface{}) error
}

// AuditLogger records booking activity for the audit trail.
type AuditLogger interface {
	LogEvent(ctx context.Context, action string, data map[string]interface{}) error
}
