// Package trip implements bike rental and return, the only operations
// that jointly mutate Bike, Dock and Station state.
package trip

import (
	"math"
	"time"

	"github.com/civicmotion/bikeshare-backend/id"
)

type Status string

const (
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
)

// Trip is the interval between unlocking a bike and docking it again.
type Trip struct {
	ID             id.Trip     `db:"id"`
	Status         Status      `db:"status"`
	BikeID         id.Bike     `db:"bike_id"`
	RiderID        id.Rider    `db:"rider_id"`
	StartStationID id.Station  `db:"start_station_id"`
	EndStationID   *id.Station `db:"end_station_id"`
	StartTime      time.Time   `db:"start_time"`
	EndTime        *time.Time  `db:"end_time"`
	BillID         *id.Bill    `db:"bill_id"`
	Pricing        string      `db:"pricing"`
}

// Duration returns the ride length at the given end time.
func (t Trip) Duration(end time.Time) time.Duration {
	return end.Sub(t.StartTime)
}

// BilledMinutes returns the ride length in whole minutes, partial minutes
// rounded up. Receipts use this so the stated duration matches what
// StandardPricing charges for.
func (t Trip) BilledMinutes(end time.Time) int64 {
	minutes := int64(math.Ceil(t.Duration(end).Minutes()))
	if minutes < 0 {
		return 0
	}
	return minutes
}
