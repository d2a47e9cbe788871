// Package rebalance redistributes the bike fleet evenly across stations.
package rebalance

import (
	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
)

// Plan is the computed redistribution: the full bike and dock sets with
// their new assignments, plus how many bikes could not be placed because
// the system holds more bikes than docks.
type Plan struct {
	Bikes    []bike.Bike
	Docks    []dock.Dock
	Placed   int
	Unplaced int
}

// Distribute spreads every bike across stations round-robin. All existing
// dock assignments are discarded first; bikes are pulled through a
// transient MAINTENANCE state while undocked, then re-docked one station
// at a time in id order so no station fills up before its neighbours get
// a bike. Bikes left over once every dock is occupied stay undocked in
// MAINTENANCE. Inputs are not mutated.
func Distribute(bikes []bike.Bike, docks []dock.Dock) Plan {
	plan := Plan{
		Bikes: make([]bike.Bike, len(bikes)),
		Docks: make([]dock.Dock, len(docks)),
	}
	copy(plan.Bikes, bikes)
	copy(plan.Docks, docks)

	for i := range plan.Bikes {
		plan.Bikes[i].DockID = nil
		plan.Bikes[i].Status = bike.StatusMaintenance
		plan.Bikes[i].ReservationExpiry = nil
	}
	for i := range plan.Docks {
		plan.Docks[i].Status = dock.StatusEmpty
	}

	// Group dock indexes by station, stations in first-seen (id) order.
	var stationOrder []id.Station
	byStation := map[id.Station][]int{}
	for i, d := range plan.Docks {
		if _, seen := byStation[d.StationID]; !seen {
			stationOrder = append(stationOrder, d.StationID)
		}
		byStation[d.StationID] = append(byStation[d.StationID], i)
	}

	next := 0 // index of the next bike to place
	for next < len(plan.Bikes) {
		placedThisRound := false
		for _, stationID := range stationOrder {
			if next >= len(plan.Bikes) {
				break
			}
			free := byStation[stationID]
			if len(free) == 0 {
				continue
			}
			di := free[0]
			byStation[stationID] = free[1:]

			dockID := plan.Docks[di].ID
			plan.Bikes[next].DockID = &dockID
			plan.Bikes[next].Status = bike.StatusAvailable
			plan.Docks[di].Status = dock.StatusOccupied
			next++
			placedThisRound = true
		}
		if !placedThisRound {
			break
		}
	}

	plan.Placed = next
	plan.Unplaced = len(plan.Bikes) - next
	return plan
}
