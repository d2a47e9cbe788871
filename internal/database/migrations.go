package database

import "context"

// Migrate applies the bootstrap schema. Statements are idempotent so this
// can run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stations (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active',
		position     POINT,
		address      TEXT NOT NULL DEFAULT '',
		capacity     INT NOT NULL,
		bikes_docked INT NOT NULL DEFAULT 0,
		CHECK (bikes_docked >= 0 AND bikes_docked <= capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS docks (
		id         BIGSERIAL PRIMARY KEY,
		station_id BIGINT NOT NULL REFERENCES stations(id),
		status     TEXT NOT NULL DEFAULT 'EMPTY'
	)`,
	`CREATE TABLE IF NOT EXISTS bikes (
		id                 BIGSERIAL PRIMARY KEY,
		dock_id            BIGINT UNIQUE REFERENCES docks(id),
		status             TEXT NOT NULL DEFAULT 'AVAILABLE',
		type               TEXT NOT NULL DEFAULT 'standard',
		reservation_expiry TIMESTAMPTZ,
		CHECK ((dock_id IS NULL) = (status IN ('ON_TRIP', 'MAINTENANCE')))
	)`,
	`CREATE TABLE IF NOT EXISTS riders (
		id           BIGSERIAL PRIMARY KEY,
		auth_subject TEXT NOT NULL UNIQUE,
		full_name    TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		role         TEXT NOT NULL DEFAULT 'rider',
		tier         TEXT NOT NULL DEFAULT 'NONE',
		stripe_id    TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id          BIGSERIAL PRIMARY KEY,
		bike_id     BIGINT NOT NULL REFERENCES bikes(id),
		station_id  BIGINT NOT NULL REFERENCES stations(id),
		rider_id    BIGINT NOT NULL REFERENCES riders(id),
		reserved_at TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL DEFAULT 'ACTIVE'
	)`,
	`CREATE TABLE IF NOT EXISTS trips (
		id               BIGSERIAL PRIMARY KEY,
		status           TEXT NOT NULL DEFAULT 'ONGOING',
		bike_id          BIGINT NOT NULL REFERENCES bikes(id),
		rider_id         BIGINT NOT NULL REFERENCES riders(id),
		start_station_id BIGINT NOT NULL REFERENCES stations(id),
		end_station_id   BIGINT REFERENCES stations(id),
		start_time       TIMESTAMPTZ NOT NULL,
		end_time         TIMESTAMPTZ,
		bill_id          BIGINT,
		pricing          TEXT NOT NULL DEFAULT 'standard'
	)`,
	`CREATE TABLE IF NOT EXISTS bills (
		id              BIGSERIAL PRIMARY KEY,
		trip_id         BIGINT NOT NULL REFERENCES trips(id),
		rider_id        BIGINT NOT NULL REFERENCES riders(id),
		regular_cost    NUMERIC(10,2) NOT NULL,
		discounted_cost NUMERIC(10,2) NOT NULL,
		status          TEXT NOT NULL DEFAULT 'PENDING'
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id          UUID PRIMARY KEY,
		entity      TEXT NOT NULL,
		entity_id   BIGINT NOT NULL,
		previous    TEXT NOT NULL,
		new_state   TEXT NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_rider_status_idx ON reservations (rider_id, status)`,
	`CREATE INDEX IF NOT EXISTS trips_rider_status_idx ON trips (rider_id, status)`,
	`CREATE INDEX IF NOT EXISTS trips_rider_start_idx ON trips (rider_id, start_time)`,
}
