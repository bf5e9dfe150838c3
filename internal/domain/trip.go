package domain

import (
	"time"

	"github.com/google/uuid"
)

type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

// Trip is a single scheduled departure of a vehicle along a route.
// ReservedSeats is mutated only through the inventory store's conditional
// update; everything else is immutable after creation except Status.
type Trip struct {
	ID            uuid.UUID
	RouteID       uuid.UUID
	VehicleID     uuid.UUID
	DriverID      uuid.UUID
	DepartureTime time.Time
	ArrivalTime   time.Time
	TotalSeats    int
	ReservedSeats int
	Status        TripStatus
}

// tripTransitions holds the forward-only status machine. Cancellation is
// reachable from SCHEDULED and IN_PROGRESS only.
var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled:  {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
	TripCompleted:  {},
	TripCancelled:  {},
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, t := range tripTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func NewTrip(routeID, vehicleID, driverID uuid.UUID, departure, arrival time.Time, totalSeats int) (Trip, error) {
	if totalSeats <= 0 {
		return Trip{}, ErrInvalidRequest
	}
	if !arrival.After(departure) {
		return Trip{}, ErrInvalidRequest
	}
	return Trip{
		ID:            uuid.New(),
		RouteID:       routeID,
		VehicleID:     vehicleID,
		DriverID:      driverID,
		DepartureTime: departure,
		ArrivalTime:   arrival,
		TotalSeats:    totalSeats,
		Status:        TripScheduled,
	}, nil
}

// Available seats at the time the trip record was read.
func (t Trip) Available() int {
	return t.TotalSeats - t.ReservedSeats
}

// Bookable reports whether the trip currently accepts new reservations.
func (t Trip) Bookable() bool {
	return t.Status == TripScheduled
}
