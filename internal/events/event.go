package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentBooked      = "APPOINTMENT_BOOKED"
	AppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	AppointmentCancelled   = "APPOINTMENT_CANCELLED"
	AppointmentDeleted     = "APPOINTMENT_DELETED"
	AppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	AppointmentCompleted   = "APPOINTMENT_COMPLETED"
	AppointmentMissed      = "APPOINTMENT_MISSED"
	AppointmentExpired     = "APPOINTMENT_EXPIRED"
	SlotPublished          = "SLOT_PUBLISHED"
	SlotUpdated            = "SLOT_UPDATED"
	SlotDeleted            = "SLOT_DELETED"
	SlotsGenerated         = "SLOTS_GENERATED"
)

// Event is a committed state change, published after the fact.
type Event struct {
	Type          string         `json:"type"`
	ProviderID    uuid.UUID      `json:"provider_id"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
	SlotID        *uuid.UUID     `json:"slot_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

type multiPublisher []Publisher

// Multi fans an event out to every publisher and joins their errors.
func Multi(pubs ...Publisher) Publisher {
	return multiPublisher(pubs)
}

func (m multiPublisher) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
