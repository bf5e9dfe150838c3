package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transconnect/booking-engine/internal/adapters/memory"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/domain"
	"github.com/transconnect/booking-engine/internal/observability"
)

func newCoordinator(store *memory.Store, opts ...booking.CoordinatorOption) *booking.Coordinator {
	opts = append([]booking.CoordinatorOption{booking.WithBackoff(0)}, opts...)
	return booking.NewCoordinator(store, store, observability.NewLogger("test"), opts...)
}

func seedTrip(t *testing.T, store *memory.Store, totalSeats int) domain.Trip {
	t.Helper()
	dep := time.Now().Add(24 * time.Hour)
	trip, err := domain.NewTrip(uuid.New(), uuid.New(), uuid.New(), dep, dep.Add(3*time.Hour), totalSeats)
	require.NoError(t, err)
	require.NoError(t, store.CreateTrip(context.Background(), trip))
	return trip
}

func reservedSeats(t *testing.T, store *memory.Store, tripID uuid.UUID) int {
	t.Helper()
	avail, err := store.GetAvailability(context.Background(), tripID)
	require.NoError(t, err)
	return avail.ReservedSeats
}

func TestBook_Validation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 10)

	cases := []booking.BookingRequest{
		{TripID: trip.ID, Seats: 0, IdempotencyToken: "tok"},
		{TripID: trip.ID, Seats: -1, IdempotencyToken: "tok"},
		{TripID: trip.ID, Seats: 1, IdempotencyToken: ""},
		{TripID: uuid.Nil, Seats: 1, IdempotencyToken: "tok"},
	}
	for _, req := range cases {
		_, err := coord.Book(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}

	// InvalidRequest leaves no ledger row behind.
	found, err := store.FindByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestBook_UnknownTrip(t *testing.T) {
	store := memory.NewStore()
	coord := newCoordinator(store)

	_, err := coord.Book(context.Background(), booking.BookingRequest{
		TripID: uuid.New(), Seats: 1, IdempotencyToken: "tok-unknown",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBook_ConfirmAndReject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 2)

	resA, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 2, IdempotencyToken: "A"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, resA.Status)
	assert.Equal(t, 2, reservedSeats(t, store, trip.ID))

	resB, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 1, IdempotencyToken: "B"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRejected, resB.Status)
	assert.Equal(t, booking.ReasonInsufficientSeats, resB.Reason)
	assert.Equal(t, 2, reservedSeats(t, store, trip.ID))

	// Retry of token A returns the original confirmed outcome and does not
	// touch the seat count again.
	replay, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 2, IdempotencyToken: "A"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, replay.Status)
	assert.Equal(t, resA.Reservation.ID, replay.Reservation.ID)
	assert.Equal(t, 2, reservedSeats(t, store, trip.ID))

	// The rejection is on the ledger too.
	stored, err := store.FindByToken(ctx, "B")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.ReservationRejected, stored.Status)
}

func TestBook_RejectedTokenReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 1)

	_, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 5, IdempotencyToken: "R"})
	require.NoError(t, err)

	replay, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 5, IdempotencyToken: "R"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRejected, replay.Status)
	assert.Equal(t, booking.ReasonInsufficientSeats, replay.Reason)
}

func TestBook_TripNotBookable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 10)
	require.NoError(t, store.UpdateTripStatus(ctx, trip.ID, domain.TripInProgress))

	res, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 1, IdempotencyToken: "late"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationRejected, res.Status)
	assert.Equal(t, booking.ReasonTripNotBookable, res.Reason)
	assert.Equal(t, 0, reservedSeats(t, store, trip.ID))
}

func TestBook_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	// Generous retry budget so most losers resolve to a rejection rather
	// than contention.
	coord := newCoordinator(store, booking.WithRetryLimit(50))
	trip := seedTrip(t, store, 5)

	const callers = 20
	results := make([]domain.ReservationStatus, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := coord.Book(ctx, booking.BookingRequest{
				TripID:           trip.ID,
				Seats:            1,
				IdempotencyToken: uuid.NewString(),
			})
			results[i] = res.Status
			errs[i] = err
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for i := range results {
		switch {
		case errs[i] == nil && results[i] == domain.ReservationConfirmed:
			confirmed++
		case errs[i] == nil && results[i] == domain.ReservationRejected:
		case errs[i] != nil:
			assert.ErrorIs(t, errs[i], domain.ErrContention)
		}
	}
	assert.Equal(t, 5, confirmed)
	assert.Equal(t, 5, reservedSeats(t, store, trip.ID))

	// reserved_seats equals the sum of confirmed reservations.
	live, err := store.ListConfirmedByTrip(ctx, trip.ID)
	require.NoError(t, err)
	sum := 0
	for _, r := range live {
		sum += r.RequestedSeats
	}
	assert.Equal(t, 5, sum)
}

func TestBook_ContentionAfterRetryLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	trip := seedTrip(t, store, 10)

	inv := &alwaysConflict{Store: store}
	coord := booking.NewCoordinator(inv, store, observability.NewLogger("test"),
		booking.WithBackoff(0), booking.WithRetryLimit(3))

	_, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 1, IdempotencyToken: "C"})
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, 3, inv.attempts)

	// The token is not burned: once the contention clears, the same token
	// books normally.
	coord2 := newCoordinator(store)
	res, err := coord2.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 1, IdempotencyToken: "C"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, res.Status)
}

// alwaysConflict simulates a trip under permanent write contention.
type alwaysConflict struct {
	*memory.Store
	attempts int
}

func (a *alwaysConflict) TryReserve(ctx context.Context, tripID uuid.UUID, seatDelta, expectedReserved int) error {
	a.attempts++
	return domain.ErrConflict
}

func TestBook_StampsTimesFromClock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	coord := newCoordinator(store, booking.WithClock(func() time.Time { return fixed }))
	trip := seedTrip(t, store, 4)

	res, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 1, IdempotencyToken: "clock"})
	require.NoError(t, err)
	assert.True(t, res.Reservation.CreatedAt.Equal(fixed))
	assert.True(t, res.Reservation.DecidedAt.Equal(fixed))
}

func TestCancelReservation_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 8)

	res, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 3, IdempotencyToken: "X"})
	require.NoError(t, err)
	require.Equal(t, 3, reservedSeats(t, store, trip.ID))

	cancelled, err := coord.CancelReservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, 0, reservedSeats(t, store, trip.ID))

	// Second cancel is a no-op failure, not a crash, and releases nothing.
	_, err = coord.CancelReservation(ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 0, reservedSeats(t, store, trip.ID))
}

// flakyLedger drops CancelConfirmed calls until failures runs out, standing in
// for a store whose connection dies mid-cancel.
type flakyLedger struct {
	*memory.Store
	failures int
}

func (f *flakyLedger) CancelConfirmed(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	if f.failures > 0 {
		f.failures--
		return domain.Reservation{}, errors.New("connection reset")
	}
	return f.Store.CancelConfirmed(ctx, id)
}

func TestCancelReservation_FailureLeavesSeatsIntact(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := &flakyLedger{Store: store, failures: 1}
	coord := booking.NewCoordinator(store, ledger, observability.NewLogger("test"), booking.WithBackoff(0))
	trip := seedTrip(t, store, 5)

	res, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 3, IdempotencyToken: "flaky"})
	require.NoError(t, err)
	require.Equal(t, 3, reservedSeats(t, store, trip.ID))

	_, err = coord.CancelReservation(ctx, res.Reservation.ID)
	require.Error(t, err)

	// Nothing half-done: the reservation is still confirmed and its seats
	// still held, so the sum invariant survives the failure.
	stored, err := store.FindByID(ctx, res.Reservation.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.ReservationConfirmed, stored.Status)
	assert.Equal(t, 3, reservedSeats(t, store, trip.ID))

	// Once the store recovers, the same cancel goes through.
	cancelled, err := coord.CancelReservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, 0, reservedSeats(t, store, trip.ID))
}

func TestCancelReservation_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 2)

	_, err := coord.CancelReservation(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Rejected reservations cannot be cancelled.
	rej, err := coord.Book(ctx, booking.BookingRequest{TripID: trip.ID, Seats: 5, IdempotencyToken: "rej"})
	require.NoError(t, err)
	require.Equal(t, domain.ReservationRejected, rej.Status)
	_, err = coord.CancelReservation(ctx, rej.Reservation.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelTrip_ReleasesAllConfirmed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 10)

	for i, seats := range []int{2, 3, 1} {
		_, err := coord.Book(ctx, booking.BookingRequest{
			TripID: trip.ID, Seats: seats, IdempotencyToken: uuid.NewString() + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}
	require.Equal(t, 6, reservedSeats(t, store, trip.ID))

	released, err := coord.CancelTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, released)
	assert.Equal(t, 0, reservedSeats(t, store, trip.ID))

	got, err := store.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripCancelled, got.Status)

	// Idempotent sweep: nothing left to release.
	released, err = coord.CancelTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestCancelTrip_CompletedTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coord := newCoordinator(store)
	trip := seedTrip(t, store, 4)

	require.NoError(t, store.UpdateTripStatus(ctx, trip.ID, domain.TripInProgress))
	require.NoError(t, store.UpdateTripStatus(ctx, trip.ID, domain.TripCompleted))

	_, err := coord.CancelTrip(ctx, trip.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
