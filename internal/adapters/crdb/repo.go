package crdb

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transconnect/booking-engine/internal/booking"
	"github.com/transconnect/booking-engine/internal/domain"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

// Repository implements the inventory store, the reservation ledger and the
// outbox-backed event sink on a single CockroachDB pool.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) CreateTrip(ctx context.Context, trip domain.Trip) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trips (id, route_id, vehicle_id, driver_id, departure_time, arrival_time, total_seats, reserved_seats, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, trip.ID, trip.RouteID, trip.VehicleID, trip.DriverID, trip.DepartureTime, trip.ArrivalTime, trip.TotalSeats, trip.ReservedSeats, trip.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetTrip(ctx context.Context, tripID uuid.UUID) (domain.Trip, error) {
	var trip domain.Trip
	err := r.pool.QueryRow(ctx, `
		SELECT id, route_id, vehicle_id, driver_id, departure_time, arrival_time, total_seats, reserved_seats, status
		FROM trips WHERE id = $1
	`, tripID).Scan(&trip.ID, &trip.RouteID, &trip.VehicleID, &trip.DriverID, &trip.DepartureTime, &trip.ArrivalTime, &trip.TotalSeats, &trip.ReservedSeats, &trip.Status)
	if err == pgx.ErrNoRows {
		return domain.Trip{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trip{}, err
	}
	return trip, nil
}

func (r *Repository) GetAvailability(ctx context.Context, tripID uuid.UUID) (booking.Availability, error) {
	var avail booking.Availability
	err := r.pool.QueryRow(ctx, `
		SELECT id, total_seats, reserved_seats, total_seats - reserved_seats
		FROM trips WHERE id = $1
	`, tripID).Scan(&avail.TripID, &avail.TotalSeats, &avail.ReservedSeats, &avail.Available)
	if err == pgx.ErrNoRows {
		return booking.Availability{}, domain.ErrNotFound
	}
	if err != nil {
		return booking.Availability{}, err
	}
	return avail, nil
}

// TryReserve is the single seat-mutating statement: a conditional update that
// commits only when reserved_seats still matches the caller's expectation and
// capacity holds. A stale expectation surfaces as ErrConflict for the
// coordinator's retry loop.
func (r *Repository) TryReserve(ctx context.Context, tripID uuid.UUID, seatDelta, expectedReserved int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE trips
		SET reserved_seats = reserved_seats + $2
		WHERE id = $1
		  AND reserved_seats = $3
		  AND reserved_seats + $2 <= total_seats
		  AND reserved_seats + $2 >= 0
	`, tripID, seatDelta, expectedReserved)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, tripID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *Repository) Release(ctx context.Context, tripID uuid.UUID, seatDelta int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE trips SET reserved_seats = GREATEST(reserved_seats - $2, 0) WHERE id = $1
	`, tripID, seatDelta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateTripStatus(ctx context.Context, tripID uuid.UUID, status domain.TripStatus) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var current domain.TripStatus
		err := tx.QueryRow(ctx, `SELECT status FROM trips WHERE id = $1 FOR UPDATE`, tripID).Scan(&current)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(status) {
			return domain.ErrInvalidTransition
		}
		_, err = tx.Exec(ctx, `UPDATE trips SET status = $2 WHERE id = $1`, tripID, status)
		return err
	})
}

func (r *Repository) ListTrips(ctx context.Context, filter booking.TripFilter) ([]domain.Trip, error) {
	query := `
		SELECT id, route_id, vehicle_id, driver_id, departure_time, arrival_time, total_seats, reserved_seats, status
		FROM trips WHERE 1 = 1`
	var args []interface{}
	if filter.RouteID != nil {
		args = append(args, *filter.RouteID)
		query += fmt.Sprintf(" AND route_id = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		query += fmt.Sprintf(" AND departure_time >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		query += fmt.Sprintf(" AND departure_time <= $%d", len(args))
	}
	if filter.MinSeats > 0 {
		args = append(args, filter.MinSeats)
		query += fmt.Sprintf(" AND total_seats - reserved_seats >= $%d", len(args))
	}
	query += " ORDER BY departure_time ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		var trip domain.Trip
		if err := rows.Scan(&trip.ID, &trip.RouteID, &trip.VehicleID, &trip.DriverID, &trip.DepartureTime, &trip.ArrivalTime, &trip.TotalSeats, &trip.ReservedSeats, &trip.Status); err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// TripsNeedingRelease lists cancelled trips that still carry confirmed
// reservations, e.g. when the operations process flipped the status directly
// in the database. The sweeper releases them.
func (r *Repository) TripsNeedingRelease(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT t.id
		FROM trips t JOIN reservations res ON res.trip_id = t.id
		WHERE t.status = $1 AND res.status = $2
	`, domain.TripCancelled, domain.ReservationConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) FindByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	res, err := r.findReservation(ctx, `WHERE idempotency_token = $1`, token)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return r.findReservation(ctx, `WHERE id = $1`, id)
}

func (r *Repository) findReservation(ctx context.Context, where string, arg interface{}) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT id, trip_id, idempotency_token, requested_seats, status, reason, created_at, decided_at
		FROM reservations `+where, arg).Scan(
		&res.ID, &res.TripID, &res.IdempotencyToken, &res.RequestedSeats, &res.Status, &res.Reason, &res.CreatedAt, &res.DecidedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) Record(ctx context.Context, res domain.Reservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (id, trip_id, idempotency_token, requested_seats, status, reason, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, res.TripID, res.IdempotencyToken, res.RequestedSeats, res.Status, res.Reason, res.CreatedAt, res.DecidedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
			return domain.ErrDuplicateToken
		}
		return err
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var current domain.ReservationStatus
		err := tx.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(status) {
			return domain.ErrInvalidTransition
		}
		_, err = tx.Exec(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, status)
		return err
	})
}

// CancelConfirmed runs the status transition and the seat release in one
// SERIALIZABLE transaction so a mid-cancel failure cannot strand the seats.
func (r *Repository) CancelConfirmed(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	var res domain.Reservation
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, trip_id, idempotency_token, requested_seats, status, reason, created_at, decided_at
			FROM reservations WHERE id = $1 FOR UPDATE
		`, id).Scan(&res.ID, &res.TripID, &res.IdempotencyToken, &res.RequestedSeats, &res.Status, &res.Reason, &res.CreatedAt, &res.DecidedAt)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationConfirmed {
			return domain.ErrInvalidState
		}
		if _, err := tx.Exec(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, domain.ReservationCancelled); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE trips SET reserved_seats = GREATEST(reserved_seats - $2, 0) WHERE id = $1
		`, res.TripID, res.RequestedSeats)
		return err
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	res.Status = domain.ReservationCancelled
	return res, nil
}

func (r *Repository) ListConfirmedByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trip_id, idempotency_token, requested_seats, status, reason, created_at, decided_at
		FROM reservations WHERE trip_id = $1 AND status = $2
	`, tripID, domain.ReservationConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.TripID, &res.IdempotencyToken, &res.RequestedSeats, &res.Status, &res.Reason, &res.CreatedAt, &res.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
