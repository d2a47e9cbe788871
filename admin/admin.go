// Package admin holds operator-only maintenance actions.
package admin

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/rebalance"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

// Purger wipes one table. bill, reservation, trip and notify repositories
// all satisfy it.
type Purger interface {
	DeleteAll(ctx context.Context, q sqlx.ExtContext) error
}

// Resetter wipes all booking history and redistributes the fleet. Riders,
// stations, docks and bikes survive; everything transactional goes.
type Resetter struct {
	tx           TxRunner
	bills        Purger
	reservations Purger
	trips        Purger
	events       Purger
	bikes        rebalance.BikeStore
	docks        rebalance.DockStore
	stations     rebalance.StationStore
	logger       *slog.Logger
}

func NewResetter(
	tx TxRunner,
	bills, reservations, trips, events Purger,
	bikes rebalance.BikeStore,
	docks rebalance.DockStore,
	stations rebalance.StationStore,
	logger *slog.Logger,
) *Resetter {
	return &Resetter{
		tx:           tx,
		bills:        bills,
		reservations: reservations,
		trips:        trips,
		events:       events,
		bikes:        bikes,
		docks:        docks,
		stations:     stations,
		logger:       logger,
	}
}

// Reset purges bills, reservations, events and trips, then redistributes
// every bike, all in a single transaction. The purge order respects the
// bill -> trip foreign key.
func (r *Resetter) Reset(ctx context.Context) (rebalance.Plan, error) {
	var plan rebalance.Plan
	err := r.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		for _, p := range []Purger{r.bills, r.reservations, r.events, r.trips} {
			if err := p.DeleteAll(ctx, q); err != nil {
				return err
			}
		}

		bikes, err := r.bikes.ListForUpdate(ctx, q)
		if err != nil {
			return err
		}
		docks, err := r.docks.ListForUpdate(ctx, q)
		if err != nil {
			return err
		}
		plan = rebalance.Distribute(bikes, docks)

		// Clear dock links before re-assigning; dock_id is UNIQUE per statement.
		if err := r.bikes.UndockAll(ctx, q); err != nil {
			return err
		}
		if err := r.bikes.UpdateAll(ctx, q, plan.Bikes); err != nil {
			return err
		}
		if err := r.docks.UpdateAll(ctx, q, plan.Docks); err != nil {
			return err
		}
		return r.stations.SyncDockCounts(ctx, q)
	})
	if err != nil {
		return rebalance.Plan{}, err
	}
	r.logger.Warn("system reset", "bikes_placed", plan.Placed, "bikes_unplaced", plan.Unplaced)
	return plan, nil
}
