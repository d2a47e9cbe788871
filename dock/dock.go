// Package dock
package dock

import "github.com/civicmotion/bikeshare-backend/id"

type Status string

const (
	StatusEmpty    Status = "EMPTY"
	StatusOccupied Status = "OCCUPIED"
)

// Dock is a single docking slot belonging to one station. It is OCCUPIED
// exactly when one bike references it.
type Dock struct {
	ID        id.Dock    `db:"id"`
	StationID id.Station `db:"station_id"`
	Status    Status     `db:"status"`
}
