package station

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("station not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Station, error) {
	var stations []Station
	err := r.db.SelectContext(ctx, &stations, listStations)
	return stations, err
}

const listStations = `SELECT * FROM stations ORDER BY id`

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (Station, error) {
	var s Station
	err := sqlx.GetContext(ctx, q, &s, getStation, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrNotFound
	}
	return s, err
}

const getStation = `SELECT * FROM stations WHERE id = $1`

// GetForUpdate locks the station row so concurrent rentals/returns cannot
// double-count BikesDocked.
func (r *Repository) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (Station, error) {
	var s Station
	err := sqlx.GetContext(ctx, q, &s, getStationForUpdate, stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrNotFound
	}
	return s, err
}

const getStationForUpdate = `SELECT * FROM stations WHERE id = $1 FOR UPDATE`

func (r *Repository) Update(ctx context.Context, q sqlx.ExtContext, s Station) error {
	_, err := q.ExecContext(ctx, updateStation, s.ID, s.BikesDocked)
	return err
}

const updateStation = `UPDATE stations SET bikes_docked = $2 WHERE id = $1`

// SyncDockCounts recomputes bikes_docked from the docks table for every
// station. Run after the rebalancer rewrites dock assignments.
func (r *Repository) SyncDockCounts(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, syncDockCounts)
	return err
}

const syncDockCounts = `
UPDATE stations s SET bikes_docked = (
	SELECT count(*) FROM docks d WHERE d.station_id = s.id AND d.status = 'OCCUPIED'
)`
