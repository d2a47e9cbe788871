// Package notify carries entity state-change events to operator dashboards.
//
// Delivery is fire-and-forget everywhere: a sink that fails is logged and
// skipped, and never affects the state transition that produced the event.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityBike        EntityType = "BIKE"
	EntityStation     EntityType = "STATION"
	EntityReservation EntityType = "RESERVATION"
)

// States referenced by emitted events. Bike and reservation events reuse
// the entity status strings; stations get a dedicated empty marker.
const (
	StateStationEmpty = "STATION_EMPTY"
)

type Event struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Entity     EntityType `json:"entity" db:"entity"`
	EntityID   int64      `json:"entityId" db:"entity_id"`
	Previous   string     `json:"previous" db:"previous"`
	New        string     `json:"new" db:"new_state"`
	Metadata   string     `json:"metadata,omitempty" db:"metadata"`
	OccurredAt time.Time  `json:"occurredAt" db:"occurred_at"`
}

func NewEvent(entity EntityType, entityID int64, previous, newState, metadata string) Event {
	return Event{
		ID:         uuid.New(),
		Entity:     entity,
		EntityID:   entityID,
		Previous:   previous,
		New:        newState,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink receives state-change events.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Fanout delivers each event to every configured sink. It always returns
// nil: delivery failure is an observability problem, not the caller's.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	for _, s := range f.sinks {
		if err := s.Notify(ctx, ev); err != nil {
			f.logger.Error("event delivery failed",
				"event", ev.ID, "entity", ev.Entity, "error", err)
		}
	}
	return nil
}

// LogSink writes events to the structured log. Cheap default sink so a dev
// instance without redis/amqp still shows traffic.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, ev Event) error {
	s.Logger.Info("entity state change",
		"entity", ev.Entity,
		"entityId", ev.EntityID,
		"previous", ev.Previous,
		"new", ev.New,
		"metadata", ev.Metadata,
	)
	return nil
}
