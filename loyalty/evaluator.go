// Package loyalty classifies riders into tiers from their trip and
// reservation history. Evaluation is read-only; the only state it ever
// touches is the rider's stored tier.
package loyalty

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/rider"
)

const (
	bronzeMinTrips   = 10
	windowMinTrips   = 5
	silverWindows    = 3
	silverWindowSpan = 30 * 24 * time.Hour
	goldWindows      = 12
	goldWindowSpan   = 7 * 24 * time.Hour
	trailingYear     = 365 * 24 * time.Hour
)

// History is the aggregate-query port the evaluator reads from.
type History interface {
	// MissedReservations counts reservations that expired unclaimed
	// since the given time.
	MissedReservations(ctx context.Context, riderID id.Rider, since time.Time) (int, error)
	// UnreturnedTrips counts trips still ONGOING, over all time.
	UnreturnedTrips(ctx context.Context, riderID id.Rider) (int, error)
	// CompletedTripsSince counts completed trips started since the given time.
	CompletedTripsSince(ctx context.Context, riderID id.Rider, since time.Time) (int, error)
	// TripsBetween counts trips started in [start, end).
	TripsBetween(ctx context.Context, riderID id.Rider, start, end time.Time) (int, error)
}

type RiderStore interface {
	List(ctx context.Context) ([]rider.Rider, error)
	UpdateTier(ctx context.Context, riderID id.Rider, tier rider.Tier) error
}

type Evaluator struct {
	history History
	riders  RiderStore
	logger  *slog.Logger

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func NewEvaluator(history History, riders RiderStore, logger *slog.Logger) *Evaluator {
	return &Evaluator{history: history, riders: riders, logger: logger, Now: time.Now}
}

// Classify computes the rider's tier from history. The predicates nest:
// each tier requires everything below it, so evaluation walks up from
// BRONZE and stops at the first bar the rider misses.
func (e *Evaluator) Classify(ctx context.Context, riderID id.Rider) (rider.Tier, error) {
	now := e.Now()

	ok, err := e.bronzeEligible(ctx, riderID, now)
	if err != nil {
		return rider.TierNone, err
	}
	if !ok {
		return rider.TierNone, nil
	}

	ok, err = e.windowsMet(ctx, riderID, now, silverWindows, silverWindowSpan)
	if err != nil {
		return rider.TierNone, err
	}
	if !ok {
		return rider.TierBronze, nil
	}

	ok, err = e.windowsMet(ctx, riderID, now, goldWindows, goldWindowSpan)
	if err != nil {
		return rider.TierNone, err
	}
	if !ok {
		return rider.TierSilver, nil
	}
	return rider.TierGold, nil
}

// bronzeEligible: no missed reservations in the trailing year, every bike
// ever taken returned, and at least 10 completed trips in the trailing
// year.
func (e *Evaluator) bronzeEligible(ctx context.Context, riderID id.Rider, now time.Time) (bool, error) {
	missed, err := e.history.MissedReservations(ctx, riderID, now.Add(-trailingYear))
	if err != nil {
		return false, err
	}
	if missed > 0 {
		return false, nil
	}

	unreturned, err := e.history.UnreturnedTrips(ctx, riderID)
	if err != nil {
		return false, err
	}
	if unreturned > 0 {
		return false, nil
	}

	completed, err := e.history.CompletedTripsSince(ctx, riderID, now.Add(-trailingYear))
	if err != nil {
		return false, err
	}
	return completed >= bronzeMinTrips, nil
}

// windowsMet checks that each of the n non-overlapping spans counting
// back from now contains at least 5 started trips.
func (e *Evaluator) windowsMet(ctx context.Context, riderID id.Rider, now time.Time, n int, span time.Duration) (bool, error) {
	for i := 0; i < n; i++ {
		end := now.Add(-time.Duration(i) * span)
		start := end.Add(-span)
		count, err := e.history.TripsBetween(ctx, riderID, start, end)
		if err != nil {
			return false, err
		}
		if count < windowMinTrips {
			return false, nil
		}
	}
	return true, nil
}

// UpdateRiderTier recomputes the tier and persists it only when it moved.
// The returned flag lets batch jobs report how many riders changed tiers
// without re-saving unchanged rows.
func (e *Evaluator) UpdateRiderTier(ctx context.Context, rd rider.Rider) (bool, error) {
	tier, err := e.Classify(ctx, rd.ID)
	if err != nil {
		return false, err
	}
	if tier == rd.Tier {
		return false, nil
	}
	if err := e.riders.UpdateTier(ctx, rd.ID, tier); err != nil {
		return false, err
	}
	e.logger.Info("rider tier changed", "rider", rd.ID, "from", rd.Tier, "to", tier)
	return true, nil
}

// SweepAll re-evaluates every rider. Returns how many moved tiers and how
// many were examined.
func (e *Evaluator) SweepAll(ctx context.Context) (changed, total int, err error) {
	riders, err := e.riders.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, rd := range riders {
		moved, err := e.UpdateRiderTier(ctx, rd)
		if err != nil {
			return changed, len(riders), err
		}
		if moved {
			changed++
		}
	}
	return changed, len(riders), nil
}
