package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"space-auth/internal/event"
)

// EventRepository keeps the auth event trail in PostgreSQL.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Record(ctx context.Context, e event.Event) error {
	occurredAt, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	var payloadJSON []byte
	if len(e.Payload) > 0 {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}

	var userID *string
	if e.ActorID != "" {
		userID = &e.ActorID
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO auth_events (id, event_type, occurred_at, user_id, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Type), occurredAt, userID, payloadJSON)
	if err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}
	return nil
}

// ListByUser returns the newest events concerning userID first.
func (r *EventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, event_type, occurred_at, payload
		 FROM auth_events
		 WHERE user_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		var e event.Event
		var eventType string
		var occurredAt time.Time
		var payloadJSON []byte

		if err := rows.Scan(&e.ID, &eventType, &occurredAt, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}

		e.Type = event.Type(eventType)
		e.ActorID = userID
		e.Timestamp = occurredAt.UTC().Format(time.RFC3339)
		if len(payloadJSON) > 0 {
			if jsonErr := json.Unmarshal(payloadJSON, &e.Payload); jsonErr != nil {
				return nil, fmt.Errorf("decode auth event payload: %w", jsonErr)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
