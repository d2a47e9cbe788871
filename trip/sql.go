package trip

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("trip not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, tripID id.Trip) (Trip, error) {
	var t Trip
	err := sqlx.GetContext(ctx, q, &t, getTrip, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, ErrNotFound
	}
	return t, err
}

const getTrip = `SELECT * FROM trips WHERE id = $1`

func (r *Repository) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, tripID id.Trip) (Trip, error) {
	var t Trip
	err := sqlx.GetContext(ctx, q, &t, getTripForUpdate, tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, ErrNotFound
	}
	return t, err
}

const getTripForUpdate = `SELECT * FROM trips WHERE id = $1 FOR UPDATE`

// OngoingForRider returns the rider's single ONGOING trip, locked, or nil.
func (r *Repository) OngoingForRider(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (*Trip, error) {
	var t Trip
	err := sqlx.GetContext(ctx, q, &t, ongoingForRider, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const ongoingForRider = `SELECT * FROM trips WHERE rider_id = $1 AND status = 'ONGOING' FOR UPDATE`

func (r *Repository) Create(ctx context.Context, q sqlx.QueryerContext, t *Trip) error {
	return sqlx.GetContext(ctx, q, t, createTrip,
		t.Status, t.BikeID, t.RiderID, t.StartStationID, t.StartTime, t.Pricing)
}

const createTrip = `
INSERT INTO trips (status, bike_id, rider_id, start_station_id, start_time, pricing)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *
`

// CompleteRide writes the end-of-ride fields. The bill reference is saved
// separately by SetBill because the bill amount is computed from the end
// time persisted here.
func (r *Repository) CompleteRide(ctx context.Context, q sqlx.ExtContext, t Trip) error {
	_, err := q.ExecContext(ctx, completeRide, t.ID, t.Status, t.EndStationID, t.EndTime)
	return err
}

const completeRide = `UPDATE trips SET status = $2, end_station_id = $3, end_time = $4 WHERE id = $1`

func (r *Repository) SetBill(ctx context.Context, q sqlx.ExtContext, tripID id.Trip, billID id.Bill) error {
	_, err := q.ExecContext(ctx, setBill, tripID, billID)
	return err
}

const setBill = `UPDATE trips SET bill_id = $2 WHERE id = $1`

// ListByRider returns the rider's trip history, newest first.
func (r *Repository) ListByRider(ctx context.Context, riderID id.Rider) ([]Trip, error) {
	var trips []Trip
	err := r.db.SelectContext(ctx, &trips, listByRider, riderID)
	return trips, err
}

const listByRider = `SELECT * FROM trips WHERE rider_id = $1 ORDER BY start_time DESC`

// DeleteAll purges every trip. Part of the full system reset.
func (r *Repository) DeleteAll(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, deleteAllTrips)
	return err
}

const deleteAllTrips = `DELETE FROM trips`
