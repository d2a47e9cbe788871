package reservation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("reservation not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, resID id.Reservation) (Reservation, error) {
	var res Reservation
	err := sqlx.GetContext(ctx, q, &res, getReservation, resID)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	return res, err
}

const getReservation = `SELECT * FROM reservations WHERE id = $1`

func (r *Repository) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, resID id.Reservation) (Reservation, error) {
	var res Reservation
	err := sqlx.GetContext(ctx, q, &res, getReservationForUpdate, resID)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	return res, err
}

const getReservationForUpdate = `SELECT * FROM reservations WHERE id = $1 FOR UPDATE`

// ActiveForRider returns the rider's single ACTIVE reservation, locked, or
// nil if they hold none.
func (r *Repository) ActiveForRider(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (*Reservation, error) {
	var res Reservation
	err := sqlx.GetContext(ctx, q, &res, activeForRider, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

const activeForRider = `SELECT * FROM reservations WHERE rider_id = $1 AND status = 'ACTIVE' FOR UPDATE`

func (r *Repository) Create(ctx context.Context, q sqlx.QueryerContext, res *Reservation) error {
	return sqlx.GetContext(ctx, q, res, createReservation,
		res.BikeID, res.StationID, res.RiderID, res.ReservedAt, res.ExpiresAt, res.Status)
}

const createReservation = `
INSERT INTO reservations (bike_id, station_id, rider_id, reserved_at, expires_at, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *
`

func (r *Repository) UpdateStatus(ctx context.Context, q sqlx.ExtContext, resID id.Reservation, status Status) error {
	_, err := q.ExecContext(ctx, updateReservationStatus, resID, status)
	return err
}

const updateReservationStatus = `UPDATE reservations SET status = $2 WHERE id = $1`

// ListByRider returns the rider's reservation history, newest first.
func (r *Repository) ListByRider(ctx context.Context, riderID id.Rider) ([]Reservation, error) {
	var out []Reservation
	err := r.db.SelectContext(ctx, &out, listByRider, riderID)
	return out, err
}

const listByRider = `SELECT * FROM reservations WHERE rider_id = $1 ORDER BY reserved_at DESC`

// DeleteAll purges every reservation. Part of the full system reset.
func (r *Repository) DeleteAll(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, deleteAllReservations)
	return err
}

const deleteAllReservations = `DELETE FROM reservations`
