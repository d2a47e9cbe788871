package trip

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/bill"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/metrics"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
)

var (
	// ErrAlreadyRenting is returned when the rider already has an
	// ONGOING trip.
	ErrAlreadyRenting = errors.New("rider already has an ongoing trip")
	// ErrStationFull is returned when a return targets a station with no
	// free dock. It is an expected, recoverable outcome: callers should
	// offer an alternate station, not an error page.
	ErrStationFull = errors.New("destination station is full")
	// ErrNotRentable is returned when the bike's status forbids an
	// unlock (maintenance or already on a trip).
	ErrNotRentable = errors.New("bike is not in a rentable status")
	// ErrBikeHeld is returned when the bike is reserved and the caller
	// is not the rider holding the reservation.
	ErrBikeHeld = errors.New("bike is reserved by another rider")
	// ErrInvalidState covers entity mismatches: the bike is not in the
	// named dock, the dock is not at the named station, and so on.
	ErrInvalidState = errors.New("entity state forbids this operation")
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

type Store interface {
	Get(ctx context.Context, q sqlx.QueryerContext, tripID id.Trip) (Trip, error)
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, tripID id.Trip) (Trip, error)
	OngoingForRider(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (*Trip, error)
	Create(ctx context.Context, q sqlx.QueryerContext, t *Trip) error
	CompleteRide(ctx context.Context, q sqlx.ExtContext, t Trip) error
	SetBill(ctx context.Context, q sqlx.ExtContext, tripID id.Trip, billID id.Bill) error
}

type BikeStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, bikeID id.Bike) (bike.Bike, error)
	Update(ctx context.Context, q sqlx.ExtContext, b bike.Bike) error
}

type DockStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, dockID id.Dock) (dock.Dock, error)
	Update(ctx context.Context, q sqlx.ExtContext, d dock.Dock) error
}

type StationStore interface {
	Get(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (station.Station, error)
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (station.Station, error)
	Update(ctx context.Context, q sqlx.ExtContext, s station.Station) error
}

type RiderStore interface {
	Get(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (rider.Rider, error)
}

type BillStore interface {
	Create(ctx context.Context, q sqlx.QueryerContext, b *bill.Bill) error
}

// ReservationCompleter resolves the rider's hold on the bike being
// unlocked. Implemented by the reservation manager.
type ReservationCompleter interface {
	CompleteActiveForBike(ctx context.Context, q sqlx.ExtContext, riderID id.Rider, bikeID id.Bike) (bool, error)
}

// Manager owns the Trip lifecycle and the joint Bike/Dock/Station
// mutation during rent and return.
type Manager struct {
	db           TxRunner
	trips        Store
	bikes        BikeStore
	docks        DockStore
	stations     StationStore
	riders       RiderStore
	bills        BillStore
	reservations ReservationCompleter
	sink         notify.Sink
	logger       *slog.Logger

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func NewManager(db TxRunner, trips Store, bikes BikeStore, docks DockStore, stations StationStore, riders RiderStore, bills BillStore, reservations ReservationCompleter, sink notify.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		db:           db,
		trips:        trips,
		bikes:        bikes,
		docks:        docks,
		stations:     stations,
		riders:       riders,
		bills:        bills,
		reservations: reservations,
		sink:         sink,
		logger:       logger,
		Now:          time.Now,
	}
}

// Rent unlocks a bike from its dock and opens a trip. The bike, dock,
// station and trip records change together or not at all.
func (m *Manager) Rent(ctx context.Context, bikeID id.Bike, dockID id.Dock, riderID id.Rider, stationID id.Station) (Trip, error) {
	now := m.Now()
	var (
		t      Trip
		events []notify.Event
	)
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		if _, err := m.riders.Get(ctx, q, riderID); err != nil {
			return err
		}
		ongoing, err := m.trips.OngoingForRider(ctx, q, riderID)
		if err != nil {
			return err
		}
		if ongoing != nil {
			return ErrAlreadyRenting
		}

		b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
		if err != nil {
			return err
		}
		d, err := m.docks.GetForUpdate(ctx, q, dockID)
		if err != nil {
			return err
		}
		st, err := m.stations.GetForUpdate(ctx, q, stationID)
		if err != nil {
			return err
		}

		if !b.Rentable() {
			return ErrNotRentable
		}
		if b.DockID == nil || *b.DockID != dockID {
			return ErrInvalidState
		}
		if d.StationID != stationID {
			return ErrInvalidState
		}

		// A RESERVED bike may only be unlocked by the rider holding the
		// reservation; the unlock completes it even past expiry.
		if b.Status == bike.StatusReserved {
			completed, err := m.reservations.CompleteActiveForBike(ctx, q, riderID, bikeID)
			if err != nil {
				return err
			}
			if !completed {
				return ErrBikeHeld
			}
		}

		prevAvail := st.Availability()

		b.Status = bike.StatusOnTrip
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
		if st.BikesDocked == 0 {
			events = append(events, notify.NewEvent(notify.EntityStation, int64(st.ID),
				string(prevAvail), notify.StateStationEmpty, "rebalance required"))
		}

		t = Trip{
			Status:         StatusOngoing,
			BikeID:         bikeID,
			RiderID:        riderID,
			StartStationID: stationID,
			StartTime:      now,
			Pricing:        PricingStandard,
		}
		return m.trips.Create(ctx, q, &t)
	})
	if err != nil {
		return Trip{}, err
	}

	metrics.TripsStarted.Inc()
	m.emit(ctx, events)
	m.logger.Info("trip started", "trip", t.ID, "bike", bikeID, "rider", riderID, "station", stationID)
	return t, nil
}

// ReturnResult carries everything the receipt needs.
type ReturnResult struct {
	Trip             Trip
	Bill             bill.Bill
	StartStationName string
	EndStationName   string
	Pricing          PricingStrategy
}

// Return docks the bike at the destination station, completes the trip
// and creates a PENDING bill. Fails with ErrStationFull before any state
// changes when the destination has no room.
func (m *Manager) Return(ctx context.Context, tripID id.Trip, bikeID id.Bike, dockID id.Dock, riderID id.Rider, endStationID id.Station) (ReturnResult, error) {
	now := m.Now()
	var (
		res    ReturnResult
		events []notify.Event
	)
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		t, err := m.trips.GetForUpdate(ctx, q, tripID)
		if err != nil {
			return err
		}
		if t.Status != StatusOngoing || t.RiderID != riderID || t.BikeID != bikeID {
			return ErrInvalidState
		}

		st, err := m.stations.GetForUpdate(ctx, q, endStationID)
		if err != nil {
			return err
		}
		if st.IsFull() {
			return ErrStationFull
		}

		d, err := m.docks.GetForUpdate(ctx, q, dockID)
		if err != nil {
			return err
		}
		if d.StationID != endStationID || d.Status != dock.StatusEmpty {
			return ErrInvalidState
		}

		b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusOnTrip {
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

		t.Status = StatusCompleted
		t.EndStationID = &endStationID
		t.EndTime = &now
		if err := m.trips.CompleteRide(ctx, q, t); err != nil {
			return err
		}

		rd, err := m.riders.Get(ctx, q, riderID)
		if err != nil {
			return err
		}
		strategy := StrategyByName(t.Pricing)
		cost := strategy.Cost(t.Duration(now))
		discounted := cost.Mul(decimal.NewFromInt(1).Sub(rd.Tier.DiscountRate())).Round(2)

		bl := bill.Bill{
			TripID:         t.ID,
			RiderID:        riderID,
			RegularCost:    cost,
			DiscountedCost: discounted,
			Status:         bill.StatusPending,
		}
		if err := m.bills.Create(ctx, q, &bl); err != nil {
			return err
		}
		// Second trip save: the bill reference depends on the cost
		// computed from the end time persisted above.
		if err := m.trips.SetBill(ctx, q, t.ID, bl.ID); err != nil {
			return err
		}
		t.BillID = &bl.ID

		startStation, err := m.stations.Get(ctx, q, t.StartStationID)
		if err != nil {
			return err
		}

		res = ReturnResult{
			Trip:             t,
			Bill:             bl,
			StartStationName: startStation.Name,
			EndStationName:   st.Name,
			Pricing:          strategy,
		}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}

	metrics.TripsCompleted.Inc()
	m.emit(ctx, events)
	m.logger.Info("trip completed",
		"trip", tripID, "bike", bikeID, "rider", riderID,
		"station", endStationID, "cost", res.Bill.DiscountedCost)
	return res, nil
}

// CurrentForRider returns the rider's ONGOING trip, or nil.
func (m *Manager) CurrentForRider(ctx context.Context, riderID id.Rider) (*Trip, error) {
	var out *Trip
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		t, err := m.trips.OngoingForRider(ctx, q, riderID)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) emit(ctx context.Context, events []notify.Event) {
	for _, ev := range events {
		if ev.New == notify.StateStationEmpty {
			metrics.StationsEmptied.Inc()
		}
		if err := m.sink.Notify(ctx, ev); err != nil {
			m.logger.Error("notification failed", "event", ev.ID, "error", err)
		}
	}
}
