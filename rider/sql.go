package rider

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("rider not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (Rider, error) {
	var rd Rider
	err := sqlx.GetContext(ctx, q, &rd, getRider, riderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Rider{}, ErrNotFound
	}
	return rd, err
}

const getRider = `SELECT * FROM riders WHERE id = $1`

func (r *Repository) GetByAuthSubject(ctx context.Context, subject string) (Rider, error) {
	var rd Rider
	err := r.db.GetContext(ctx, &rd, getRiderBySubject, subject)
	if errors.Is(err, sql.ErrNoRows) {
		return Rider{}, ErrNotFound
	}
	return rd, err
}

const getRiderBySubject = `SELECT * FROM riders WHERE auth_subject = $1`

// Create provisions a rider row for a newly seen auth subject.
func (r *Repository) Create(ctx context.Context, subject string) (Rider, error) {
	var rd Rider
	err := r.db.GetContext(ctx, &rd, createRider, subject)
	return rd, err
}

const createRider = `
INSERT INTO riders (auth_subject, role, tier, created_at)
VALUES ($1, 'rider', 'NONE', now())
RETURNING *
`

func (r *Repository) List(ctx context.Context) ([]Rider, error) {
	var riders []Rider
	err := r.db.SelectContext(ctx, &riders, listRiders)
	return riders, err
}

const listRiders = `SELECT * FROM riders ORDER BY id`

func (r *Repository) UpdateProfile(ctx context.Context, riderID id.Rider, fullName, email string) error {
	_, err := r.db.ExecContext(ctx, updateProfile, riderID, fullName, email)
	return err
}

const updateProfile = `UPDATE riders SET full_name = $2, email = $3 WHERE id = $1`

// UpdateTier persists a recomputed loyalty tier.
func (r *Repository) UpdateTier(ctx context.Context, riderID id.Rider, tier Tier) error {
	_, err := r.db.ExecContext(ctx, updateTier, riderID, tier)
	return err
}

const updateTier = `UPDATE riders SET tier = $2 WHERE id = $1`
