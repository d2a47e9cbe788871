// Package reservation implements time-boxed bike holds and guards the
// bike-reservation invariant: one ACTIVE reservation per rider, one
// RESERVED bike per reservation.
package reservation

import (
	"time"

	"github.com/civicmotion/bikeshare-backend/id"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusCompleted Status = "COMPLETED"
)

// BaseHold is the reservation window granted to untiered riders. Loyalty
// tiers extend it; see rider.Tier.ExtraHold.
const BaseHold = 5 * time.Minute

// Reservation is a hold on one bike for one rider. ACTIVE is the only
// non-terminal status: once CANCELLED, EXPIRED or COMPLETED a reservation
// never changes again.
type Reservation struct {
	ID         id.Reservation `db:"id"`
	BikeID     id.Bike        `db:"bike_id"`
	StationID  id.Station     `db:"station_id"`
	RiderID    id.Rider       `db:"rider_id"`
	ReservedAt time.Time      `db:"reserved_at"`
	ExpiresAt  time.Time      `db:"expires_at"`
	Status     Status         `db:"status"`
}

// Terminal reports whether the reservation has reached a final status.
func (r Reservation) Terminal() bool {
	return r.Status != StatusActive
}

// ExpiredAt reports whether the hold window has lapsed at the given time.
// This is a pure time check; the status transition is the Manager's job.
func (r Reservation) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
