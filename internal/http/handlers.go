package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/domain"
	"github.com/transconnect/booking-engine/internal/idempotency"
	"github.com/transconnect/booking-engine/internal/observability"
)

type Handlers struct {
	coord  *booking.Coordinator
	search *booking.SearchService
	idemp  *idempotency.Idempotency
	logger observability.Logger
}

func NewHandlers(coord *booking.Coordinator, search *booking.SearchService, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		coord:  coord,
		search: search,
		idemp:  idemp,
		logger: logger,
	}
}

type bookRequest struct {
	TripID           uuid.UUID `json:"trip_id"`
	Seats            int       `json:"seats"`
	IdempotencyToken string    `json:"idempotency_token"`
}

type bookResponse struct {
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IdempotencyToken == "" {
		req.IdempotencyToken = r.Header.Get("Idempotency-Key")
	}

	// Fast path for retried requests: replay the cached response. The ledger
	// check inside the coordinator covers cache misses.
	if cached, err := h.idemp.Get(r.Context(), req.IdempotencyToken); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(cached.Status)
		w.Write(cached.Result)
		return
	}

	result, err := h.coord.Book(r.Context(), booking.BookingRequest{
		TripID:           req.TripID,
		Seats:            req.Seats,
		IdempotencyToken: req.IdempotencyToken,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		http.Error(w, "invalid booking request", http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "trip not found", http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrContention):
		// Retryable: distinct from a seat rejection so clients can back off
		// instead of giving up on the trip.
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, bookResponse{Status: "contention"})
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	resp := bookResponse{
		Status:        "confirmed",
		ReservationID: result.Reservation.ID.String(),
	}
	switch result.Status {
	case domain.ReservationRejected:
		code = http.StatusConflict
		resp.Status = "rejected"
		resp.Reason = result.Reason
	case domain.ReservationCancelled:
		// Token replay of a booking that was cancelled after confirmation.
		code = http.StatusOK
		resp.Status = "cancelled"
	}

	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)

	h.idemp.Set(r.Context(), req.IdempotencyToken, idempotency.Response{Status: code, Result: data})
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid reservation id", http.StatusBadRequest)
		return
	}

	_, err = h.coord.CancelReservation(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "invalid_state"})
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

type tripSummaryResponse struct {
	TripID        string    `json:"trip_id"`
	RouteID       string    `json:"route_id"`
	DepartureTime time.Time `json:"departure_time"`
	TotalSeats    int       `json:"total_seats"`
	Available     int       `json:"available"`
}

func (h *Handlers) SearchTrips(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	seq, err := h.search.Search(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := []tripSummaryResponse{}
	for s := range seq {
		out = append(out, tripSummaryResponse{
			TripID:        s.TripID.String(),
			RouteID:       s.RouteID.String(),
			DepartureTime: s.DepartureTime,
			TotalSeats:    s.TotalSeats,
			Available:     s.Available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}

	avail, err := h.search.Availability(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "trip not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"total_seats":    avail.TotalSeats,
		"reserved_seats": avail.ReservedSeats,
		"available":      avail.Available,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func filterFromQuery(r *http.Request) (booking.TripFilter, error) {
	var filter booking.TripFilter
	q := r.URL.Query()

	if v := q.Get("route_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.Wrap(domain.ErrInvalidRequest, "route_id")
		}
		filter.RouteID = &id
	}
	if v := q.Get("date_from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.Wrap(domain.ErrInvalidRequest, "date_from")
		}
		filter.DateFrom = &ts
	}
	if v := q.Get("date_to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.Wrap(domain.ErrInvalidRequest, "date_to")
		}
		filter.DateTo = &ts
	}
	if v := q.Get("min_seats"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.Wrap(domain.ErrInvalidRequest, "min_seats")
		}
		filter.MinSeats = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
