package bill

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

var ErrNotFound = errors.New("bill not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, billID id.Bill) (Bill, error) {
	var b Bill
	err := r.db.GetContext(ctx, &b, getBill, billID)
	if errors.Is(err, sql.ErrNoRows) {
		return Bill{}, ErrNotFound
	}
	return b, err
}

const getBill = `SELECT * FROM bills WHERE id = $1`

func (r *Repository) Create(ctx context.Context, q sqlx.QueryerContext, b *Bill) error {
	return sqlx.GetContext(ctx, q, b, createBill,
		b.TripID, b.RiderID, b.RegularCost, b.DiscountedCost, b.Status)
}

const createBill = `
INSERT INTO bills (trip_id, rider_id, regular_cost, discounted_cost, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING *
`

func (r *Repository) MarkPaid(ctx context.Context, billID id.Bill) error {
	_, err := r.db.ExecContext(ctx, markPaid, billID)
	return err
}

const markPaid = `UPDATE bills SET status = 'PAID' WHERE id = $1`

// ListByRider returns the rider's bills, newest first.
func (r *Repository) ListByRider(ctx context.Context, riderID id.Rider) ([]Bill, error) {
	var bills []Bill
	err := r.db.SelectContext(ctx, &bills, listByRider, riderID)
	return bills, err
}

const listByRider = `SELECT * FROM bills WHERE rider_id = $1 ORDER BY id DESC`

// DeleteAll purges every bill. Part of the full system reset.
func (r *Repository) DeleteAll(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, deleteAllBills)
	return err
}

const deleteAllBills = `DELETE FROM bills`
