// Package bill
package bill

import (
	"github.com/shopspring/decimal"

	"github.com/civicmotion/bikeshare-backend/id"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Bill is the charge for one completed trip. DiscountedCost is
// RegularCost reduced by the rider's tier discount at return time.
type Bill struct {
	ID             id.Bill         `db:"id"`
	TripID         id.Trip         `db:"trip_id"`
	RiderID        id.Rider        `db:"rider_id"`
	RegularCost    decimal.Decimal `db:"regular_cost"`
	DiscountedCost decimal.Decimal `db:"discounted_cost"`
	Status         Status          `db:"status"`
}
