package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationRejected  ReservationStatus = "REJECTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation records one booking attempt and its outcome. PENDING exists only
// inside a booking attempt as an audit anchor; it is never observable through
// the ledger after the attempt decides.
type Reservation struct {
	ID               uuid.UUID
	TripID           uuid.UUID
	IdempotencyToken string
	RequestedSeats   int
	Status           ReservationStatus
	// Reason is set on rejected reservations so a token replay can return the
	// original outcome verbatim.
	Reason    string
	CreatedAt time.Time
	DecidedAt time.Time
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationRejected},
	ReservationConfirmed: {ReservationCancelled},
	ReservationRejected:  {},
	ReservationCancelled: {},
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, t := range reservationTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func NewReservation(tripID uuid.UUID, token string, seats int, now time.Time) Reservation {
	return Reservation{
		ID:               uuid.New(),
		TripID:           tripID,
		IdempotencyToken: token,
		RequestedSeats:   seats,
		Status:           ReservationPending,
		CreatedAt:        now,
	}
}

// Decide moves a pending reservation to its final booking outcome.
func (r *Reservation) Decide(status ReservationStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	r.Status = status
	r.DecidedAt = now
	return nil
}
