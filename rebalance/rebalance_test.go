package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
)

func makeDocks(stationCapacities map[id.Station]int, order []id.Station) []dock.Dock {
	var docks []dock.Dock
	var next id.Dock = 1
	for _, s := range order {
		for i := 0; i < stationCapacities[s]; i++ {
			docks = append(docks, dock.Dock{ID: next, StationID: s, Status: dock.StatusOccupied})
			next++
		}
	}
	return docks
}

func makeBikes(n int) []bike.Bike {
	bikes := make([]bike.Bike, n)
	for i := range bikes {
		bikes[i] = bike.Bike{ID: id.Bike(i + 1), Status: bike.StatusAvailable}
	}
	return bikes
}

func countByStation(t *testing.T, plan Plan) map[id.Station]int {
	t.Helper()
	dockStation := map[id.Dock]id.Station{}
	for _, d := range plan.Docks {
		dockStation[d.ID] = d.StationID
	}
	counts := map[id.Station]int{}
	for _, b := range plan.Bikes {
		if b.DockID == nil {
			continue
		}
		s, ok := dockStation[*b.DockID]
		require.True(t, ok, "bike %d docked in unknown dock %d", b.ID, *b.DockID)
		counts[s]++
	}
	return counts
}

func TestDistributeSpreadsEvenly(t *testing.T) {
	docks := makeDocks(map[id.Station]int{1: 4, 2: 3, 3: 3}, []id.Station{1, 2, 3})
	plan := Distribute(makeBikes(10), docks)

	assert.Equal(t, 10, plan.Placed)
	assert.Equal(t, 0, plan.Unplaced)
	assert.Equal(t, map[id.Station]int{1: 4, 2: 3, 3: 3}, countByStation(t, plan))

	for _, b := range plan.Bikes {
		assert.Equal(t, bike.StatusAvailable, b.Status)
		assert.Nil(t, b.ReservationExpiry)
	}
	for _, d := range plan.Docks {
		assert.Equal(t, dock.StatusOccupied, d.Status)
	}
}

func TestDistributeRoundRobinOrder(t *testing.T) {
	// Four bikes over three stations: every station gets one before any
	// station gets a second.
	docks := makeDocks(map[id.Station]int{1: 2, 2: 2, 3: 2}, []id.Station{1, 2, 3})
	plan := Distribute(makeBikes(4), docks)

	assert.Equal(t, map[id.Station]int{1: 2, 2: 1, 3: 1}, countByStation(t, plan))
}

func TestDistributeLeavesSurplusInMaintenance(t *testing.T) {
	docks := makeDocks(map[id.Station]int{1: 2}, []id.Station{1})
	plan := Distribute(makeBikes(5), docks)

	assert.Equal(t, 2, plan.Placed)
	assert.Equal(t, 3, plan.Unplaced)

	var maintenance int
	for _, b := range plan.Bikes {
		if b.Status == bike.StatusMaintenance {
			require.Nil(t, b.DockID)
			maintenance++
		}
	}
	assert.Equal(t, 3, maintenance)
}

func TestDistributeClearsReservations(t *testing.T) {
	bikes := makeBikes(2)
	bikes[0].Status = bike.StatusReserved
	docks := makeDocks(map[id.Station]int{1: 2}, []id.Station{1})

	plan := Distribute(bikes, docks)
	for _, b := range plan.Bikes {
		assert.Equal(t, bike.StatusAvailable, b.Status)
		assert.Nil(t, b.ReservationExpiry)
	}
}

func TestDistributeNoBikes(t *testing.T) {
	docks := makeDocks(map[id.Station]int{1: 2}, []id.Station{1})
	plan := Distribute(nil, docks)

	assert.Equal(t, 0, plan.Placed)
	for _, d := range plan.Docks {
		assert.Equal(t, dock.StatusEmpty, d.Status)
	}
}
