package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPublisher appends events to the event_logs table.
type PgPublisher struct {
	pool *pgxpool.Pool
}

func NewPgPublisher(pool *pgxpool.Pool) *PgPublisher {
	return &PgPublisher{pool: pool}
}

func (p *PgPublisher) Publish(ctx context.Context, ev Event) error {
	var data []byte
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		data = b
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, provider_id, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, ev.Type, ev.ProviderID, ev.AppointmentID, ev.SlotID, data, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
