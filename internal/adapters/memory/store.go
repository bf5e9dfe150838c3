// Package memory holds in-process implementations of the inventory store and
// reservation ledger. They back the unit tests and local single-node runs;
// production uses the crdb adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/domain"
)

type Store struct {
	mu           sync.Mutex
	trips        map[uuid.UUID]domain.Trip
	reservations map[uuid.UUID]domain.Reservation
	byToken      map[string]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		trips:        make(map[uuid.UUID]domain.Trip),
		reservations: make(map[uuid.UUID]domain.Reservation),
		byToken:      make(map[string]uuid.UUID),
	}
}

func (s *Store) CreateTrip(ctx context.Context, trip domain.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[trip.ID]; ok {
		return domain.ErrConflict
	}
	s.trips[trip.ID] = trip
	return nil
}

func (s *Store) GetTrip(ctx context.Context, tripID uuid.UUID) (domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return domain.Trip{}, domain.ErrNotFound
	}
	return trip, nil
}

func (s *Store) GetAvailability(ctx context.Context, tripID uuid.UUID) (booking.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return booking.Availability{}, domain.ErrNotFound
	}
	return booking.Availability{
		TripID:        trip.ID,
		TotalSeats:    trip.TotalSeats,
		ReservedSeats: trip.ReservedSeats,
		Available:     trip.Available(),
	}, nil
}

func (s *Store) TryReserve(ctx context.Context, tripID uuid.UUID, seatDelta, expectedReserved int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return domain.ErrNotFound
	}
	if trip.ReservedSeats != expectedReserved {
		return domain.ErrConflict
	}
	if expectedReserved+seatDelta > trip.TotalSeats || expectedReserved+seatDelta < 0 {
		return domain.ErrConflict
	}
	trip.ReservedSeats += seatDelta
	s.trips[tripID] = trip
	return nil
}

func (s *Store) Release(ctx context.Context, tripID uuid.UUID, seatDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return domain.ErrNotFound
	}
	trip.ReservedSeats -= seatDelta
	if trip.ReservedSeats < 0 {
		trip.ReservedSeats = 0
	}
	s.trips[tripID] = trip
	return nil
}

func (s *Store) UpdateTripStatus(ctx context.Context, tripID uuid.UUID, status domain.TripStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return domain.ErrNotFound
	}
	if !trip.Status.CanTransitionTo(status) {
		return domain.ErrInvalidTransition
	}
	trip.Status = status
	s.trips[tripID] = trip
	return nil
}

func (s *Store) ListTrips(ctx context.Context, filter booking.TripFilter) ([]domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trip
	for _, trip := range s.trips {
		if filter.RouteID != nil && trip.RouteID != *filter.RouteID {
			continue
		}
		if filter.DateFrom != nil && trip.DepartureTime.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && trip.DepartureTime.After(*filter.DateTo) {
			continue
		}
		if filter.MinSeats > 0 && trip.Available() < filter.MinSeats {
			continue
		}
		out = append(out, trip)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	return out, nil
}

func (s *Store) FindByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, nil
	}
	res := s.reservations[id]
	return &res, nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (s *Store) Record(ctx context.Context, res domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[res.IdempotencyToken]; ok {
		return domain.ErrDuplicateToken
	}
	s.reservations[res.ID] = res
	s.byToken[res.IdempotencyToken] = res.ID
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !res.Status.CanTransitionTo(status) {
		return domain.ErrInvalidTransition
	}
	res.Status = status
	s.reservations[id] = res
	return nil
}

func (s *Store) CancelConfirmed(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if res.Status != domain.ReservationConfirmed {
		return domain.Reservation{}, domain.ErrInvalidState
	}
	res.Status = domain.ReservationCancelled
	s.reservations[id] = res

	if trip, ok := s.trips[res.TripID]; ok {
		trip.ReservedSeats -= res.RequestedSeats
		if trip.ReservedSeats < 0 {
			trip.ReservedSeats = 0
		}
		s.trips[res.TripID] = trip
	}
	return res, nil
}

func (s *Store) ListConfirmedByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.TripID == tripID && res.Status == domain.ReservationConfirmed {
			out = append(out, res)
		}
	}
	return out, nil
}
