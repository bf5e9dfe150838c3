package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transconnect/booking-engine/internal/adapters/memory"
	"github.com/transconnect/booking-engine/internal/domain"
)

func seedTrip(t *testing.T, s *memory.Store, totalSeats int) domain.Trip {
	t.Helper()
	dep := time.Now().Add(24 * time.Hour)
	trip, err := domain.NewTrip(uuid.New(), uuid.New(), uuid.New(), dep, dep.Add(2*time.Hour), totalSeats)
	require.NoError(t, err)
	require.NoError(t, s.CreateTrip(context.Background(), trip))
	return trip
}

func TestStore_TryReserve(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 10)

	require.NoError(t, s.TryReserve(ctx, trip.ID, 4, 0))

	// Stale expectation loses.
	err := s.TryReserve(ctx, trip.ID, 1, 0)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Capacity bound holds even with a fresh expectation.
	err = s.TryReserve(ctx, trip.ID, 7, 4)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, s.TryReserve(ctx, trip.ID, 6, 4))
	avail, err := s.GetAvailability(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, avail.Available)
	assert.Equal(t, 10, avail.ReservedSeats)

	assert.ErrorIs(t, s.TryReserve(ctx, uuid.New(), 1, 0), domain.ErrNotFound)
}

func TestStore_ReleaseClampsAtZero(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 5)

	require.NoError(t, s.TryReserve(ctx, trip.ID, 2, 0))
	require.NoError(t, s.Release(ctx, trip.ID, 4))

	avail, err := s.GetAvailability(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, avail.ReservedSeats)
}

func TestStore_RecordDuplicateToken(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 5)

	res := domain.NewReservation(trip.ID, "tok-dup", 1, time.Now())
	require.NoError(t, res.Decide(domain.ReservationConfirmed, time.Now()))
	require.NoError(t, s.Record(ctx, res))

	again := domain.NewReservation(trip.ID, "tok-dup", 1, time.Now())
	assert.ErrorIs(t, s.Record(ctx, again), domain.ErrDuplicateToken)

	found, err := s.FindByToken(ctx, "tok-dup")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, res.ID, found.ID)
}

func TestStore_UpdateStatusGuardsTransitions(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 5)

	res := domain.NewReservation(trip.ID, "tok-1", 1, time.Now())
	require.NoError(t, res.Decide(domain.ReservationConfirmed, time.Now()))
	require.NoError(t, s.Record(ctx, res))

	require.NoError(t, s.UpdateStatus(ctx, res.ID, domain.ReservationCancelled))
	assert.ErrorIs(t, s.UpdateStatus(ctx, res.ID, domain.ReservationCancelled), domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.UpdateStatus(ctx, uuid.New(), domain.ReservationCancelled), domain.ErrNotFound)
}

func TestStore_CancelConfirmed(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 5)
	require.NoError(t, s.TryReserve(ctx, trip.ID, 3, 0))

	res := domain.NewReservation(trip.ID, "tok-cc", 3, time.Now())
	require.NoError(t, res.Decide(domain.ReservationConfirmed, time.Now()))
	require.NoError(t, s.Record(ctx, res))

	got, err := s.CancelConfirmed(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, got.Status)

	avail, err := s.GetAvailability(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, avail.ReservedSeats)

	_, err = s.CancelConfirmed(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = s.CancelConfirmed(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpdateTripStatus(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	trip := seedTrip(t, s, 5)

	require.NoError(t, s.UpdateTripStatus(ctx, trip.ID, domain.TripInProgress))
	require.NoError(t, s.UpdateTripStatus(ctx, trip.ID, domain.TripCompleted))
	assert.ErrorIs(t, s.UpdateTripStatus(ctx, trip.ID, domain.TripCancelled), domain.ErrInvalidTransition)
}
