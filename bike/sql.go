package bike

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("bike not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, listBikes)
	return bikes, err
}

const listBikes = `SELECT * FROM bikes ORDER BY id`

// ListAtStation returns every bike currently docked at the given station.
func (r *Repository) ListAtStation(ctx context.Context, stationID id.Station) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, listBikesAtStation, stationID)
	return bikes, err
}

const listBikesAtStation = `
SELECT b.* FROM bikes b
JOIN docks d ON b.dock_id = d.id
WHERE d.station_id = $1
ORDER BY b.id
`

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, bikeID id.Bike) (Bike, error) {
	var b Bike
	err := sqlx.GetContext(ctx, q, &b, getBike, bikeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, ErrNotFound
	}
	return b, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

// GetForUpdate locks the bike row for the duration of the surrounding
// transaction so two concurrent operations cannot both claim it.
func (r *Repository) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, bikeID id.Bike) (Bike, error) {
	var b Bike
	err := sqlx.GetContext(ctx, q, &b, getBikeForUpdate, bikeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Bike{}, ErrNotFound
	}
	return b, err
}

const getBikeForUpdate = `SELECT * FROM bikes WHERE id = $1 FOR UPDATE`

func (r *Repository) Update(ctx context.Context, q sqlx.ExtContext, b Bike) error {
	_, err := q.ExecContext(ctx, updateBike, b.ID, b.DockID, b.Status, b.ReservationExpiry)
	return err
}

const updateBike = `UPDATE bikes SET dock_id = $2, status = $3, reservation_expiry = $4 WHERE id = $1`

// UndockAll clears every dock link in one statement. dock_id is UNIQUE and
// checked per statement, so redistribution must drop the old layout before
// any new assignment is written.
func (r *Repository) UndockAll(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, undockAllBikes)
	return err
}

const undockAllBikes = `UPDATE bikes SET dock_id = NULL, status = 'MAINTENANCE', reservation_expiry = NULL`

// ListForUpdate locks and returns the whole fleet. Used by the rebalancer.
func (r *Repository) ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]Bike, error) {
	var bikes []Bike
	err := sqlx.SelectContext(ctx, q, &bikes, listBikesForUpdate)
	return bikes, err
}

const listBikesForUpdate = `SELECT * FROM bikes ORDER BY id FOR UPDATE`

// UpdateAll writes back a batch of bikes one statement at a time. Callers
// are expected to run it inside a transaction.
func (r *Repository) UpdateAll(ctx context.Context, q sqlx.ExtContext, bikes []Bike) error {
	for _, b := range bikes {
		if err := r.Update(ctx, q, b); err != nil {
			return err
		}
	}
	return nil
}
