// Package rider holds the user record and loyalty tier definitions.
package rider

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civicmotion/bikeshare-backend/id"
)

type Role string

const (
	RoleRider    Role = "rider"
	RoleOperator Role = "operator"
)

// Tier is a rider classification recomputed from trip/reservation history.
// It is never hand-set outside of a full system reset.
type Tier string

const (
	TierNone   Tier = "NONE"
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

// DiscountRate returns the fraction taken off a bill for this tier.
func (t Tier) DiscountRate() decimal.Decimal {
	switch t {
	case TierBronze:
		return decimal.NewFromFloat(0.05)
	case TierSilver:
		return decimal.NewFromFloat(0.10)
	case TierGold:
		return decimal.NewFromFloat(0.15)
	default:
		return decimal.Zero
	}
}

// ExtraHold returns the additional reservation hold time this tier grants
// on top of the base window.
func (t Tier) ExtraHold() time.Duration {
	switch t {
	case TierSilver:
		return 2 * time.Minute
	case TierGold:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Rider is a user of the system. Operators carry the same record with a
// different role tag rather than a separate type.
type Rider struct {
	ID          id.Rider       `db:"id"`
	AuthSubject string         `db:"auth_subject"`
	FullName    string         `db:"full_name"`
	Email       string         `db:"email"`
	Role        Role           `db:"role"`
	Tier        Tier           `db:"tier"`
	StripeID    sql.NullString `db:"stripe_id"`
	CreatedAt   time.Time      `db:"created_at"`
}
