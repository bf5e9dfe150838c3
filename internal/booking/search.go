package booking

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/transconnect/booking-engine/internal/domain"
)

type TripSummary struct {
	TripID        uuid.UUID
	RouteID       uuid.UUID
	DepartureTime time.Time
	TotalSeats    int
	Available     int
}

// SearchService is the read-only query side. Results are a hint computed from
// a snapshot; callers must go through the coordinator to actually hold seats.
type SearchService struct {
	inv InventoryStore
}

func NewSearchService(inv InventoryStore) *SearchService {
	return &SearchService{inv: inv}
}

// Search returns the scheduled trips matching every supplied filter, each
// annotated with the seats available at query time. The sequence is restartable
// over the snapshot taken when Search was called.
func (s *SearchService) Search(ctx context.Context, filter TripFilter) (iter.Seq[TripSummary], error) {
	trips, err := s.inv.ListTrips(ctx, filter)
	if err != nil {
		return nil, err
	}
	return func(yield func(TripSummary) bool) {
		for _, t := range trips {
			if t.Status != domain.TripScheduled {
				continue
			}
			summary := TripSummary{
				TripID:        t.ID,
				RouteID:       t.RouteID,
				DepartureTime: t.DepartureTime,
				TotalSeats:    t.TotalSeats,
				Available:     t.Available(),
			}
			if !yield(summary) {
				return
			}
		}
	}, nil
}

// Availability serves the read-only availability endpoint.
func (s *SearchService) Availability(ctx context.Context, tripID uuid.UUID) (Availability, error) {
	return s.inv.GetAvailability(ctx, tripID)
}
