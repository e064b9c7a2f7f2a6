package appointment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

// DateLayout is the calendar date format used at every boundary. Dates carry
// no zone: they are stored as midnight UTC and only ever compared as days.
const DateLayout = "2006-01-02"

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusMissed      AppointmentStatus = "missed"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// ParseStatus normalizes case and whitespace once, at ingestion.
func ParseStatus(v string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusMissed, StatusRescheduled:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// Occupies reports whether an appointment in this status holds a seat.
func (s AppointmentStatus) Occupies() bool {
	return s != StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	p := PaymentStatus(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case "":
		return PaymentUnpaid, nil
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidPayment, v)
}

// PaymentInfo is supplied by the payment collaborator; only Status affects booking.
type PaymentInfo struct {
	Method string
	Status PaymentStatus
	Amount int64 // minor currency units
}

type AppointmentSlot struct {
	ID                  uuid.UUID
	ProviderID          uuid.UUID
	Date                time.Time
	StartTime           string
	EndTime             string
	SlotDurationMinutes int
	Capacity            slot.Capacity
	// Occupants maps a time-point to the appointments holding a seat there.
	// Entries survive grid edits even when they fall off the new grid.
	Occupants map[string][]uuid.UUID
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimePoints is the slot's current grid.
func (s *AppointmentSlot) TimePoints() []string {
	points, _ := slot.Expand(s.StartTime, s.EndTime, s.SlotDurationMinutes)
	return points
}

func (s *AppointmentSlot) HasTimePoint(tp string) bool {
	return slot.Contains(s.StartTime, s.EndTime, s.SlotDurationMinutes, tp)
}

// OffGridTimePoints lists occupant keys that no longer match the grid, sorted.
func (s *AppointmentSlot) OffGridTimePoints() []string {
	var off []string
	for tp, ids := range s.Occupants {
		if len(ids) > 0 && !s.HasTimePoint(tp) {
			off = append(off, tp)
		}
	}
	sort.Strings(off)
	return off
}

func (s *AppointmentSlot) Weekday() (time.Weekday, error) {
	if s.Date.IsZero() {
		return 0, ErrAmbiguousBaseSlot
	}
	return s.Date.Weekday(), nil
}

func (s *AppointmentSlot) addOccupant(tp string, id uuid.UUID) {
	if s.Occupants == nil {
		s.Occupants = make(map[string][]uuid.UUID)
	}
	s.Occupants[tp] = append(s.Occupants[tp], id)
}

func (s *AppointmentSlot) removeOccupant(id uuid.UUID) bool {
	for tp, ids := range s.Occupants {
		for i, cur := range ids {
			if cur != id {
				continue
			}
			rest := append(ids[:i:i], ids[i+1:]...)
			if len(rest) == 0 {
				delete(s.Occupants, tp)
			} else {
				s.Occupants[tp] = rest
			}
			return true
		}
	}
	return false
}

func (s AppointmentSlot) clone() AppointmentSlot {
	c := s
	if s.Occupants != nil {
		c.Occupants = make(map[string][]uuid.UUID, len(s.Occupants))
		for tp, ids := range s.Occupants {
			c.Occupants[tp] = append([]uuid.UUID(nil), ids...)
		}
	}
	return c
}

type Appointment struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	// SlotID is the slot whose occupant list currently holds this appointment.
	SlotID uuid.UUID
	Date   time.Time
	Time   string
	Status AppointmentStatus

	// Set on the first reschedule, never overwritten.
	OriginalDate    *time.Time
	OriginalTime    *string
	RescheduleCount int

	PaymentMethod string
	PaymentStatus PaymentStatus
	Amount        int64

	// ExpiresAt bounds how long an unpaid booking holds its seat.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) clone() Appointment {
	c := a
	if a.OriginalDate != nil {
		d := *a.OriginalDate
		c.OriginalDate = &d
	}
	if a.OriginalTime != nil {
		t := *a.OriginalTime
		c.OriginalTime = &t
	}
	if a.ExpiresAt != nil {
		e := *a.ExpiresAt
		c.ExpiresAt = &e
	}
	return c
}

// ParseDate parses a "2006-01-02" calendar date into midnight UTC.
func ParseDate(v string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DateOf drops the clock and zone from t, keeping its local calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return FormatDate(a) == FormatDate(b)
}
