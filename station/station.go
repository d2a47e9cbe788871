package station

import (
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/civicmotion/bikeshare-backend/id"
)

// Availability is a derived view of BikesDocked against Capacity. It is
// never stored; see Station.Availability.
type Availability string

const (
	Empty    Availability = "EMPTY"
	Occupied Availability = "OCCUPIED"
	Full     Availability = "FULL"
)

type OperationalStatus int

const (
	Active OperationalStatus = iota
	OutOfService
)

func (s OperationalStatus) String() string {
	return [...]string{"active", "out_of_service"}[s]
}

func (s OperationalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OperationalStatus) Scan(i any) error {
	switch v := i.(type) {
	case string:
		switch v {
		case "active":
			*s = Active
			return nil
		case "out_of_service":
			*s = OutOfService
			return nil
		}
	}
	panic("invalid scan type")
}

// Station is a physical location with a fixed number of docks.
// 0 <= BikesDocked <= Capacity always holds, and BikesDocked equals the
// number of OCCUPIED docks at the station.
type Station struct {
	ID          id.Station        `db:"id"`
	Name        string            `db:"name"`
	Status      OperationalStatus `db:"status"`
	Position    pgtype.Point      `db:"position"`
	Address     string            `db:"address"`
	Capacity    int               `db:"capacity"`
	BikesDocked int               `db:"bikes_docked"`
}

// Availability derives the station's fill state.
func (s Station) Availability() Availability {
	switch {
	case s.BikesDocked <= 0:
		return Empty
	case s.BikesDocked >= s.Capacity:
		return Full
	default:
		return Occupied
	}
}

func (s Station) IsFull() bool {
	return s.BikesDocked >= s.Capacity
}
