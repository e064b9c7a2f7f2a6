package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
)

type PaymentRequest struct {
	Method string `json:"method"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type BookAppointmentRequest struct {
	ProviderID string         `json:"provider_id"`
	PatientID  string         `json:"patient_id"`
	Date       string         `json:"date"`
	Time       string         `json:"time"`
	Payment    PaymentRequest `json:"payment"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PublishSlotRequest struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	CapacityKind    string `json:"capacity_kind"`
	MaxOccupants    int    `json:"max_occupants"`
}

// UpdateSlotRequest is a partial edit; absent fields are left unchanged.
type UpdateSlotRequest struct {
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	CapacityKind    *string `json:"capacity_kind"`
	MaxOccupants    *int    `json:"max_occupants"`
	IsActive        *bool   `json:"is_active"`
}

type RecurrenceRequest struct {
	WeekCount int `json:"week_count"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	SlotID          *uuid.UUID `json:"slot_id,omitempty"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	Status          string     `json:"status"`
	OriginalDate    *string    `json:"original_date,omitempty"`
	OriginalTime    *string    `json:"original_time,omitempty"`
	RescheduleCount int        `json:"reschedule_count"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	PaymentStatus   string     `json:"payment_status"`
	Amount          int64      `json:"amount"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		Date:            appointment.FormatDate(a.Date),
		Time:            a.Time,
		Status:          string(a.Status),
		OriginalTime:    a.OriginalTime,
		RescheduleCount: a.RescheduleCount,
		PaymentMethod:   a.PaymentMethod,
		PaymentStatus:   string(a.PaymentStatus),
		Amount:          a.Amount,
		ExpiresAt:       a.ExpiresAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.SlotID != uuid.Nil {
		id := a.SlotID
		resp.SlotID = &id
	}
	if a.OriginalDate != nil {
		d := appointment.FormatDate(*a.OriginalDate)
		resp.OriginalDate = &d
	}
	return resp
}

type SlotResponse struct {
	ID              uuid.UUID              `json:"id"`
	ProviderID      uuid.UUID              `json:"provider_id"`
	Date            string                 `json:"date"`
	StartTime       string                 `json:"start_time"`
	EndTime         string                 `json:"end_time"`
	DurationMinutes int                    `json:"duration_minutes"`
	CapacityKind    string                 `json:"capacity_kind"`
	MaxOccupants    int                    `json:"max_occupants"`
	IsActive        bool                   `json:"is_active"`
	TimePoints      []string               `json:"time_points"`
	Occupants       map[string][]uuid.UUID `json:"occupants"`
	OffGrid         []string               `json:"off_grid,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func toSlotResponse(s *appointment.AppointmentSlot) SlotResponse {
	occupants := s.Occupants
	if occupants == nil {
		occupants = map[string][]uuid.UUID{}
	}
	return SlotResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Date:            appointment.FormatDate(s.Date),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.SlotDurationMinutes,
		CapacityKind:    string(s.Capacity.Kind),
		MaxOccupants:    s.Capacity.Limit(),
		IsActive:        s.IsActive,
		TimePoints:      s.TimePoints(),
		Occupants:       occupants,
		OffGrid:         s.OffGridTimePoints(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSlotResponses(slots []appointment.AppointmentSlot) []SlotResponse {
	out := make([]SlotResponse, len(slots))
	for i := range slots {
		out[i] = toSlotResponse(&slots[i])
	}
	return out
}

type DatesResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Dates      []string  `json:"dates"`
}

type TimesResponse struct {
	ProviderID uuid.UUID                           `json:"provider_id"`
	Date       string                              `json:"date"`
	Times      []appointment.TimePointAvailability `json:"times"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}
