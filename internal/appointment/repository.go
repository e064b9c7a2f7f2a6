package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence collaborator. Slots come back with occupant
// lists that already exclude cancelled appointments.
type Repository interface {
	LoadSlots(ctx context.Context, providerID uuid.UUID) ([]AppointmentSlot, error)
	LoadSlotsForDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error)

	// SaveSlot upserts the slot's configuration. Occupants are written only
	// through AddOccupant/RemoveOccupant so concurrent bookings on different
	// time-points of one slot never overwrite each other.
	SaveSlot(ctx context.Context, slot *AppointmentSlot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	AddOccupant(ctx context.Context, slotID uuid.UUID, timePoint string, appointmentID uuid.UUID) error
	RemoveOccupant(ctx context.Context, slotID, appointmentID uuid.UUID) error

	LoadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SaveAppointment(ctx context.Context, appt *Appointment) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// InTx runs fn against a repository bound to one transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
