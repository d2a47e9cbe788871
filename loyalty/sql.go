package loyalty

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/id"
)

const (
	missedReservationsQuery = `
		SELECT count(*) FROM reservations
		WHERE rider_id = $1 AND status = 'EXPIRED' AND reserved_at >= $2`

	unreturnedTripsQuery = `
		SELECT count(*) FROM trips
		WHERE rider_id = $1 AND status = 'ONGOING'`

	completedTripsSinceQuery = `
		SELECT count(*) FROM trips
		WHERE rider_id = $1 AND status = 'COMPLETED' AND start_time >= $2`

	tripsBetweenQuery = `
		SELECT count(*) FROM trips
		WHERE rider_id = $1 AND start_time >= $2 AND start_time < $3`
)

// Repository implements History against the reservations and trips tables.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) MissedReservations(ctx context.Context, riderID id.Rider, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, missedReservationsQuery, riderID, since)
	return count, err
}

func (r *Repository) UnreturnedTrips(ctx context.Context, riderID id.Rider) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, unreturnedTripsQuery, riderID)
	return count, err
}

func (r *Repository) CompletedTripsSince(ctx context.Context, riderID id.Rider, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, completedTripsSinceQuery, riderID, since)
	return count, err
}

func (r *Repository) TripsBetween(ctx context.Context, riderID id.Rider, start, end time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, tripsBetweenQuery, riderID, start, end)
	return count, err
}
