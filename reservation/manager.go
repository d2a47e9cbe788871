package reservation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/metrics"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
)

var (
	// ErrAlreadyReserved is returned when the rider already holds an
	// ACTIVE reservation.
	ErrAlreadyReserved = errors.New("rider already has an active reservation")
	// ErrBikeUnavailable is returned when the bike exists but is not
	// AVAILABLE for reservation.
	ErrBikeUnavailable = errors.New("bike is not available for reservation")
)

// TxRunner provides the atomic-commit boundary each compound operation
// runs inside.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

type Store interface {
	Get(ctx context.Context, q sqlx.QueryerContext, resID id.Reservation) (Reservation, error)
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, resID id.Reservation) (Reservation, error)
	ActiveForRider(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (*Reservation, error)
	Create(ctx context.Context, q sqlx.QueryerContext, res *Reservation) error
	UpdateStatus(ctx context.Context, q sqlx.ExtContext, resID id.Reservation, status Status) error
}

type BikeStore interface {
	GetForUpdate(ctx context.Context, q sqlx.QueryerContext, bikeID id.Bike) (bike.Bike, error)
	Update(ctx context.Context, q sqlx.ExtContext, b bike.Bike) error
}

type StationStore interface {
	Get(ctx context.Context, q sqlx.QueryerContext, stationID id.Station) (station.Station, error)
}

type RiderStore interface {
	Get(ctx context.Context, q sqlx.QueryerContext, riderID id.Rider) (rider.Rider, error)
}

// Manager owns every Reservation status transition.
type Manager struct {
	db           TxRunner
	reservations Store
	bikes        BikeStore
	stations     StationStore
	riders       RiderStore
	sink         notify.Sink
	logger       *slog.Logger

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func NewManager(db TxRunner, reservations Store, bikes BikeStore, stations StationStore, riders RiderStore, sink notify.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		db:           db,
		reservations: reservations,
		bikes:        bikes,
		stations:     stations,
		riders:       riders,
		sink:         sink,
		logger:       logger,
		Now:          time.Now,
	}
}

// Create places a hold on an AVAILABLE bike. The hold window is BaseHold
// plus the rider tier's extra minutes. A stale ACTIVE reservation held by
// the rider is lazily expired rather than blocking the new one.
func (m *Manager) Create(ctx context.Context, bikeID id.Bike, stationID id.Station, riderID id.Rider) (Reservation, error) {
	now := m.Now()
	var (
		res    Reservation
		events []notify.Event
	)
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		rd, err := m.riders.Get(ctx, q, riderID)
		if err != nil {
			return err
		}
		if _, err := m.stations.Get(ctx, q, stationID); err != nil {
			return err
		}

		active, err := m.reservations.ActiveForRider(ctx, q, riderID)
		if err != nil {
			return err
		}
		if active != nil {
			if !active.ExpiredAt(now) {
				return ErrAlreadyReserved
			}
			evs, err := m.expireLocked(ctx, q, *active)
			if err != nil {
				return err
			}
			events = append(events, evs...)
		}

		b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusAvailable {
			return ErrBikeUnavailable
		}

		res = Reservation{
			BikeID:     bikeID,
			StationID:  stationID,
			RiderID:    riderID,
			ReservedAt: now,
			ExpiresAt:  now.Add(BaseHold + rd.Tier.ExtraHold()),
			Status:     StatusActive,
		}
		if err := m.reservations.Create(ctx, q, &res); err != nil {
			return err
		}

		b.Status = bike.StatusReserved
		b.ReservationExpiry = &res.ExpiresAt
		return m.bikes.Update(ctx, q, b)
	})
	if err != nil {
		return Reservation{}, err
	}

	metrics.ReservationsCreated.Inc()
	m.emit(ctx, events)
	m.logger.Info("reservation created",
		"reservation", res.ID, "bike", bikeID, "rider", riderID, "expiresAt", res.ExpiresAt)
	return res, nil
}

// ActiveForRider returns the rider's current ACTIVE reservation, or nil.
// This read mutates: a lapsed reservation found here is expired on the
// spot (freeing the bike and emitting expiry notifications) and nil is
// returned instead of the stale record.
func (m *Manager) ActiveForRider(ctx context.Context, riderID id.Rider) (*Reservation, error) {
	now := m.Now()
	var (
		out    *Reservation
		events []notify.Event
	)
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		active, err := m.reservations.ActiveForRider(ctx, q, riderID)
		if err != nil || active == nil {
			return err
		}
		if active.ExpiredAt(now) {
			evs, err := m.expireLocked(ctx, q, *active)
			if err != nil {
				return err
			}
			events = append(events, evs...)
			return nil
		}
		out = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, events)
	return out, nil
}

// Cancel resolves an ACTIVE reservation and frees its bike. Cancelling an
// already-resolved reservation is a no-op so retries stay safe.
func (m *Manager) Cancel(ctx context.Context, resID id.Reservation) error {
	cancelled := false
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		res, err := m.reservations.GetForUpdate(ctx, q, resID)
		if err != nil {
			return err
		}
		if res.Terminal() {
			return nil
		}
		if err := m.reservations.UpdateStatus(ctx, q, res.ID, StatusCancelled); err != nil {
			return err
		}
		cancelled = true
		return m.freeBike(ctx, q, res.BikeID)
	})
	if err != nil {
		return err
	}
	if cancelled {
		metrics.ReservationsCancelled.Inc()
		m.logger.Info("reservation cancelled", "reservation", resID)
	}
	return nil
}

// Expire resolves an ACTIVE reservation whose hold window has lapsed.
// Idempotent: a reservation that is already terminal, or not yet past its
// expiry, is left untouched and no error is returned. Expiry may race the
// lazy path in ActiveForRider; whichever commits first wins and the loser
// no-ops.
func (m *Manager) Expire(ctx context.Context, resID id.Reservation) error {
	now := m.Now()
	var events []notify.Event
	err := m.db.InTx(ctx, func(q sqlx.ExtContext) error {
		res, err := m.reservations.GetForUpdate(ctx, q, resID)
		if err != nil {
			return err
		}
		if res.Terminal() || !res.ExpiredAt(now) {
			return nil
		}
		events, err = m.expireLocked(ctx, q, res)
		return err
	})
	if err != nil {
		return err
	}
	m.emit(ctx, events)
	return nil
}

// CompleteActiveForBike marks the rider's ACTIVE reservation on the given
// bike COMPLETED and reports whether it did. Invoked by the trip manager
// inside its own rental transaction; the unlock itself is proof the bike
// was claimed in time, so this succeeds even past the expiry timestamp.
// No-op when the rider holds no matching reservation.
func (m *Manager) CompleteActiveForBike(ctx context.Context, q sqlx.ExtContext, riderID id.Rider, bikeID id.Bike) (bool, error) {
	active, err := m.reservations.ActiveForRider(ctx, q, riderID)
	if err != nil {
		return false, err
	}
	if active == nil || active.BikeID != bikeID {
		return false, nil
	}
	if err := m.reservations.UpdateStatus(ctx, q, active.ID, StatusCompleted); err != nil {
		return false, err
	}
	return true, nil
}

// expireLocked transitions a locked ACTIVE reservation to EXPIRED, frees
// the bike and returns the notifications to emit after commit.
func (m *Manager) expireLocked(ctx context.Context, q sqlx.ExtContext, res Reservation) ([]notify.Event, error) {
	if err := m.reservations.UpdateStatus(ctx, q, res.ID, StatusExpired); err != nil {
		return nil, err
	}
	if err := m.freeBike(ctx, q, res.BikeID); err != nil {
		return nil, err
	}
	return []notify.Event{
		notify.NewEvent(notify.EntityReservation, int64(res.ID), string(StatusActive), string(StatusExpired), ""),
		notify.NewEvent(notify.EntityBike, int64(res.BikeID), string(bike.StatusReserved), string(bike.StatusAvailable), ""),
	}, nil
}

func (m *Manager) freeBike(ctx context.Context, q sqlx.ExtContext, bikeID id.Bike) error {
	b, err := m.bikes.GetForUpdate(ctx, q, bikeID)
	if err != nil {
		return err
	}
	if b.Status != bike.StatusReserved {
		return nil
	}
	b.Status = bike.StatusAvailable
	b.ReservationExpiry = nil
	return m.bikes.Update(ctx, q, b)
}

// emit publishes post-commit notifications. Expired-reservation events
// double as the expiry metric signal so a rolled-back transaction never
// counts.
func (m *Manager) emit(ctx context.Context, events []notify.Event) {
	for _, ev := range events {
		if ev.Entity == notify.EntityReservation && ev.New == string(StatusExpired) {
			metrics.ReservationsExpired.Inc()
		}
		if err := m.sink.Notify(ctx, ev); err != nil {
			m.logger.Error("notification failed", "event", ev.ID, "error", err)
		}
	}
}
