package rebalance

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

type BikeStore interface {
	ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]bike.Bike, error)
	UndockAll(ctx context.Context, q sqlx.ExtContext) error
	UpdateAll(ctx context.Context, q sqlx.ExtContext, bikes []bike.Bike) error
}

type DockStore interface {
	ListForUpdate(ctx context.Context, q sqlx.QueryerContext) ([]dock.Dock, error)
	UpdateAll(ctx context.Context, q sqlx.ExtContext, docks []dock.Dock) error
}

type StationStore interface {
	SyncDockCounts(ctx context.Context, q sqlx.ExtContext) error
}

// Runner applies a Distribute plan to the database in one transaction.
type Runner struct {
	tx       TxRunner
	bikes    BikeStore
	docks    DockStore
	stations StationStore
	logger   *slog.Logger
}

func NewRunner(tx TxRunner, bikes BikeStore, docks DockStore, stations StationStore, logger *slog.Logger) *Runner {
	return &Runner{tx: tx, bikes: bikes, docks: docks, stations: stations, logger: logger}
}

// Run locks the whole fleet and every dock, computes the redistribution
// and writes it back. Returns the applied plan.
func (r *Runner) Run(ctx context.Context) (Plan, error) {
	var plan Plan
	err := r.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		bikes, err := r.bikes.ListForUpdate(ctx, q)
		if err != nil {
			return err
		}
		docks, err := r.docks.ListForUpdate(ctx, q)
		if err != nil {
			return err
		}

		plan = Distribute(bikes, docks)

		// Drop every existing dock link before writing the plan: dock_id is
		// UNIQUE and an assignment may target a dock another bike still holds.
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
		return Plan{}, err
	}
	r.logger.Info("fleet rebalanced", "placed", plan.Placed, "unplaced", plan.Unplaced)
	return plan, nil
}
