// Package bike
package bike

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/civicmotion/bikeshare-backend/id"
)

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusOnTrip      Status = "ON_TRIP"
	StatusMaintenance Status = "MAINTENANCE"
)

type Type int

const (
	Standard Type = iota
	Electric
	Cargo
)

func (t Type) String() string {
	return [...]string{"standard", "electric", "cargo"}[t]
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) Scan(i any) error {
	switch v := i.(type) {
	case string:
		switch v {
		case "standard":
			*t = Standard
			return nil
		case "electric":
			*t = Electric
			return nil
		case "cargo":
			*t = Cargo
			return nil
		}
	}
	panic("invalid scan type")
}

// Bike represents one bike in the fleet. A bike either sits in exactly one
// dock (DockID set) or is off the grid on a trip or in maintenance
// (DockID nil).
type Bike struct {
	ID     id.Bike  `db:"id"`
	DockID *id.Dock `db:"dock_id"`
	Status Status   `db:"status"`
	Type   Type     `db:"type"`

	// ReservationExpiry is set while the bike is RESERVED and cleared on
	// every other transition.
	ReservationExpiry *time.Time `db:"reservation_expiry"`
}

// Docked reports whether the bike currently occupies a dock.
func (b Bike) Docked() bool {
	return b.DockID != nil
}

// DockStateConsistent reports the dock/status invariant: a bike has no dock
// exactly when it is ON_TRIP or MAINTENANCE.
func (b Bike) DockStateConsistent() bool {
	undocked := b.Status == StatusOnTrip || b.Status == StatusMaintenance
	return b.Docked() != undocked
}

// Rentable reports whether the bike's status permits an unlock. A RESERVED
// bike is rentable only by the rider holding the reservation; that check
// belongs to the caller.
func (b Bike) Rentable() bool {
	return b.Status == StatusAvailable || b.Status == StatusReserved
}
