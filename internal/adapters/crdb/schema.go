package crdb

// Schema is applied by deploy tooling and by the adapter tests. The check
// constraints on trips enforce the seat invariants at the storage layer as
// well.
const Schema = `
CREATE TABLE IF NOT EXISTS trips (
	id UUID PRIMARY KEY,
	route_id UUID NOT NULL,
	vehicle_id UUID NOT NULL,
	driver_id UUID NOT NULL,
	departure_time TIMESTAMPTZ NOT NULL,
	arrival_time TIMESTAMPTZ NOT NULL,
	total_seats INT NOT NULL CHECK (total_seats > 0),
	reserved_seats INT NOT NULL DEFAULT 0 CHECK (reserved_seats >= 0 AND reserved_seats <= total_seats),
	status TEXT NOT NULL CHECK (status IN ('SCHEDULED', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED'))
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	trip_id UUID NOT NULL,
	idempotency_token TEXT NOT NULL UNIQUE,
	requested_seats INT NOT NULL CHECK (requested_seats > 0),
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'CONFIRMED', 'REJECTED', 'CANCELLED')),
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	decided_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS reservations_trip_status_idx ON reservations (trip_id, status);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`
