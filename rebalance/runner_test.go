package rebalance

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
)

type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	return fn(nil)
}

// fakeFleet mirrors the bikes table, including the per-statement UNIQUE
// check on dock_id: each row write is validated against the table as it
// stands at that moment, not against the batch's end state.
type fakeFleet struct {
	table map[id.Bike]bike.Bike
	order []id.Bike
}

func newFakeFleet(bikes []bike.Bike) *fakeFleet {
	f := &fakeFleet{table: map[id.Bike]bike.Bike{}}
	for _, b := range bikes {
		f.table[b.ID] = b
		f.order = append(f.order, b.ID)
	}
	return f
}

func (f *fakeFleet) ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]bike.Bike, error) {
	bikes := make([]bike.Bike, 0, len(f.order))
	for _, bid := range f.order {
		bikes = append(bikes, f.table[bid])
	}
	return bikes, nil
}

func (f *fakeFleet) UndockAll(ctx context.Context, q sqlx.ExtContext) error {
	for bid, b := range f.table {
		b.DockID = nil
		b.Status = bike.StatusMaintenance
		b.ReservationExpiry = nil
		f.table[bid] = b
	}
	return nil
}

func (f *fakeFleet) UpdateAll(ctx context.Context, q sqlx.ExtContext, bikes []bike.Bike) error {
	for _, b := range bikes {
		f.table[b.ID] = b
		if err := f.checkDockUnique(); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFleet) checkDockUnique() error {
	holder := map[id.Dock]id.Bike{}
	for _, b := range f.table {
		if b.DockID == nil {
			continue
		}
		if other, taken := holder[*b.DockID]; taken {
			return fmt.Errorf("duplicate key value violates unique constraint %q (dock %d held by bikes %d and %d)",
				"bikes_dock_id_key", *b.DockID, other, b.ID)
		}
		holder[*b.DockID] = b.ID
	}
	return nil
}

type fakeDockTable struct {
	docks []dock.Dock
}

func (f *fakeDockTable) ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]dock.Dock, error) {
	out := make([]dock.Dock, len(f.docks))
	copy(out, f.docks)
	return out, nil
}

func (f *fakeDockTable) UpdateAll(ctx context.Context, q sqlx.ExtContext, docks []dock.Dock) error {
	f.docks = docks
	return nil
}

type fakeStationCounts struct {
	synced bool
}

func (f *fakeStationCounts) SyncDockCounts(ctx context.Context, q sqlx.ExtContext) error {
	f.synced = true
	return nil
}

func dockRef(d id.Dock) *id.Dock { return &d }

// A permuted fleet: bikes sit in docks belonging to other stations, so the
// new assignments collide with the old layout row-by-row even though the
// end state is valid. The run must clear the old links first.
func TestRunnerRunPermutedFleet(t *testing.T) {
	fleet := newFakeFleet([]bike.Bike{
		{ID: 1, DockID: dockRef(3), Status: bike.StatusAvailable},
		{ID: 2, DockID: dockRef(1), Status: bike.StatusAvailable},
	})
	docks := &fakeDockTable{docks: []dock.Dock{
		{ID: 1, StationID: 1, Status: dock.StatusOccupied},
		{ID: 2, StationID: 1, Status: dock.StatusEmpty},
		{ID: 3, StationID: 2, Status: dock.StatusOccupied},
		{ID: 4, StationID: 2, Status: dock.StatusEmpty},
	}}
	stations := &fakeStationCounts{}

	r := NewRunner(fakeTx{}, fleet, docks, stations, slog.New(slog.DiscardHandler))
	plan, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Placed)
	assert.Equal(t, 0, plan.Unplaced)

	b1 := fleet.table[1]
	b2 := fleet.table[2]
	require.NotNil(t, b1.DockID)
	require.NotNil(t, b2.DockID)
	assert.Equal(t, id.Dock(1), *b1.DockID)
	assert.Equal(t, id.Dock(3), *b2.DockID)
	assert.Equal(t, bike.StatusAvailable, b1.Status)
	assert.Equal(t, bike.StatusAvailable, b2.Status)

	assert.True(t, stations.synced)
}

func TestRunnerRunSurplusStaysUndocked(t *testing.T) {
	fleet := newFakeFleet([]bike.Bike{
		{ID: 1, DockID: dockRef(1), Status: bike.StatusAvailable},
		{ID: 2, Status: bike.StatusOnTrip},
		{ID: 3, Status: bike.StatusMaintenance},
	})
	docks := &fakeDockTable{docks: []dock.Dock{
		{ID: 1, StationID: 1, Status: dock.StatusOccupied},
	}}

	r := NewRunner(fakeTx{}, fleet, docks, &fakeStationCounts{}, slog.New(slog.DiscardHandler))
	plan, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Placed)
	assert.Equal(t, 2, plan.Unplaced)

	var undocked int
	for _, b := range fleet.table {
		if b.DockID == nil {
			assert.Equal(t, bike.StatusMaintenance, b.Status)
			undocked++
		}
	}
	assert.Equal(t, 2, undocked)
}
