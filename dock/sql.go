package dock

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("dock not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, dockID id.Dock) (Dock, error) {
	var d Dock
	err := sqlx.GetContext(ctx, q, &d, getDock, dockID)
	if errors.Is(err, sql.ErrNoRows) {
		return Dock{}, ErrNotFound
	}
	return d, err
}

const getDock = `SELECT * FROM docks WHERE id = $1`

func (r *Repository) GetForUpdate(ctx context.Context, q sqlx.QueryerContext, dockID id.Dock) (Dock, error) {
	var d Dock
	err := sqlx.GetContext(ctx, q, &d, getDockForUpdate, dockID)
	if errors.Is(err, sql.ErrNoRows) {
		return Dock{}, ErrNotFound
	}
	return d, err
}

const getDockForUpdate = `SELECT * FROM docks WHERE id = $1 FOR UPDATE`

// ListByStation returns the docks of one station in id order.
func (r *Repository) ListByStation(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) ([]Dock, error) {
	var docks []Dock
	err := sqlx.SelectContext(ctx, q, &docks, listDocksByStation, stationID)
	return docks, err
}

const listDocksByStation = `SELECT * FROM docks WHERE station_id = $1 ORDER BY id`

func (r *Repository) Update(ctx context.Context, q sqlx.ExtContext, d Dock) error {
	_, err := q.ExecContext(ctx, updateDock, d.ID, d.Status)
	return err
}

const updateDock = `UPDATE docks SET status = $2 WHERE id = $1`

// ListForUpdate locks and returns every dock system-wide. Used by the
// rebalancer.
func (r *Repository) ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]Dock, error) {
	var docks []Dock
	err := sqlx.SelectContext(ctx, q, &docks, listDocksForUpdate)
	return docks, err
}

const listDocksForUpdate = `SELECT * FROM docks ORDER BY id FOR UPDATE`

func (r *Repository) UpdateAll(ctx context.Context, q sqlx.ExtContext, docks []Dock) error {
	for _, d := range docks {
		if err := r.Update(ctx, q, d); err != nil {
			return err
		}
	}
	return nil
}
