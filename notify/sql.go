package notify

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// EventLog appends every emitted event to the events table so operators can
// review recent activity. It implements Sink; persistence shares the
// fire-and-forget contract with the other sinks, so it deliberately writes
// outside the caller's transaction.
type EventLog struct {
	db *sqlx.DB
}

func NewEventLog(db *sqlx.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Notify(ctx context.Context, ev Event) error {
	_, err := l.db.ExecContext(ctx, appendEvent,
		ev.ID, ev.Entity, ev.EntityID, ev.Previous, ev.New, ev.Metadata, ev.OccurredAt)
	return err
}

const appendEvent = `
INSERT INTO events (id, entity, entity_id, previous, new_state, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Recent returns the newest events, newest first.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := l.db.SelectContext(ctx, &events, recentEvents, limit)
	return events, err
}

const recentEvents = `SELECT * FROM events ORDER BY occurred_at DESC LIMIT $1`

// DeleteAll purges the event log. Part of the full system reset.
func (l *EventLog) DeleteAll(ctx context.Context, q sqlx.ExtContext) error {
	_, err := q.ExecContext(ctx, deleteAllEvents)
	return err
}

const deleteAllEvents = `DELETE FROM events`
