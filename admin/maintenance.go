package admin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/station"
)

// ErrInvalidState is returned when the bike or dock is not in a state the
// maintenance transition accepts.
var ErrInvalidState = errors.New("entity state forbids this operation")

type BikeStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, bikeID id.Bike) (bike.Bike, error)
	Update(ctx context.Context, q sqlx.ExtContext, b bike.Bike) error
}

type DockStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, dockID id.Dock) (dock.Dock, error)
	Update(ctx context.Context, q sqlx.ExtContext, d dock.Dock) error
}

type MaintStationStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (station.Station, error)
	Update(ctx context.Context, q sqlx.ExtContext, s station.Station) error
}

// Maintenance moves bikes in and out of the MAINTENANCE state. The joint
// bike/dock/station mutation follows the same locking discipline as
// rentals.
type Maintenance struct {
	tx       TxRunner
	bikes    BikeStore
	docks    DockStore
	stations MaintStationStore
	sink     notify.Sink
	logger   *slog.Logger
}

func NewMaintenance(tx TxRunner, bikes BikeStore, docks DockStore, stations MaintStationStore, sink notify.Sink, logger *slog.Logger) *Maintenance {
	return &Maintenance{tx: tx, bikes: bikes, docks: docks, stations: stations, sink: sink, logger: logger}
}

// Flag pulls a docked AVAILABLE bike out of service. Its dock empties and
// the station count drops.
func (m *Maintenance) Flag(ctx context.Context, bikeID id.Bike) error {
	var events []notify.Event
	err := m.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusAvailable || b.DockID == nil {
			return ErrInvalidState
		}

		d, err := m.docks.GetForUpdate(ctx, q, *b.DockID)
		if err != nil {
			return err
		}
		st, err := m.stations.GetForUpdate(ctx, q, d.StationID)
		if err != nil {
			return err
		}

		b.Status = bike.StatusMaintenance
		b.DockID = nil
		b.ReservationExpiry = nil
		if err := m.bikes.Update(ctx, q, b); err != nil {
			return err
		}

		d.Status = dock.StatusEmpty
		if err := m.docks.Update(ctx, q, d); err != nil {
			return err
		}

		st.BikesDocked--
		if st.BikesDocked < 0 {
			return ErrInvalidState
		}
		if err := m.stations.Update(ctx, q, st); err != nil {
			return err
		}

		events = append(events, notify.NewEvent(notify.EntityBike, int64(bikeID),
			string(bike.StatusAvailable), string(bike.StatusMaintenance), ""))
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(ctx, events)
	m.logger.Info("bike flagged for maintenance", "bike", bikeID)
	return nil
}

// Activate returns a MAINTENANCE bike to service in the given empty dock.
func (m *Maintenance) Activate(ctx context.Context, bikeID id.Bike, dockID id.Dock) error {
	var events []notify.Event
	err := m.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusMaintenance {
			return ErrInvalidState
		}

		d, err := m.docks.GetForUpdate(ctx, q, dockID)
		if err != nil {
			return err
		}
		if d.Status != dock.StatusEmpty {
			return ErrInvalidState
		}
		st, err := m.stations.GetForUpdate(ctx, q, d.StationID)
		if err != nil {
			return err
		}
		if st.IsFull() {
			return ErrInvalidState
		}

		b.Status = bike.StatusAvailable
		b.DockID = &dockID
		if err := m.bikes.Update(ctx, q, b); err != nil {
			return err
		}

		d.Status = dock.StatusOccupied
		if err := m.docks.Update(ctx, q, d); err != nil {
			return err
		}

		st.BikesDocked++
		if err := m.stations.Update(ctx, q, st); err != nil {
			return err
		}

		events = append(events, notify.NewEvent(notify.EntityBike, int64(bikeID),
			string(bike.StatusMaintenance), string(bike.StatusAvailable), ""))
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(ctx, events)
	m.logger.Info("bike returned to service", "bike", bikeID, "dock", dockID)
	return nil
}

func (m *Maintenance) emit(ctx context.Context, events []notify.Event) {
	for _, ev := range events {
		if err := m.sink.Notify(ctx, ev); err != nil {
			m.logger.Error("notification failed", "event", ev.ID, "error", err)
		}
	}
}
