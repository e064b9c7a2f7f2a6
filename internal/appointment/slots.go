package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/consultation-slot-scheduling/internal/events"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

type SlotInput struct {
	ProviderID      uuid.UUID
	Date            time.Time
	StartTime       string
	EndTime         string
	DurationMinutes int
	Capacity        slot.Capacity
}

// SlotPatch carries a provider edit. Nil fields are left as they are.
type SlotPatch struct {
	StartTime       *string
	EndTime         *string
	DurationMinutes *int
	Capacity        *slot.Capacity
	IsActive        *bool
}

// validateSlot normalizes the window and rejects grids that yield no
// time-points.
func validateSlot(s *AppointmentSlot) error {
	if s.ProviderID == uuid.Nil {
		return fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	start, err := slot.NormalizeClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := slot.NormalizeClock(s.EndTime)
	if err != nil {
		return err
	}
	if _, err := slot.Expand(start, end, s.SlotDurationMinutes); err != nil {
		return err
	}
	if err := s.Capacity.Validate(); err != nil {
		return err
	}
	s.StartTime = start
	s.EndTime = end
	s.Date = DateOf(s.Date)
	return nil
}

func slotEvent(eventType string, s *AppointmentSlot, payload map[string]any) events.Event {
	slotID := s.ID
	return events.Event{
		Type:       eventType,
		ProviderID: s.ProviderID,
		SlotID:     &slotID,
		Payload:    payload,
	}
}

func slotPayload(s *AppointmentSlot) map[string]any {
	return map[string]any{
		"date":             FormatDate(s.Date),
		"start_time":       s.StartTime,
		"end_time":         s.EndTime,
		"duration_minutes": s.SlotDurationMinutes,
		"capacity":         s.Capacity.String(),
		"is_active":        s.IsActive,
	}
}

// PublishSlot creates an active slot for a single date.
func (s *Service) PublishSlot(ctx context.Context, in SlotInput) (*AppointmentSlot, error) {
	ctx, span := tracer.Start(ctx, "appointment.PublishSlot",
		trace.WithAttributes(attribute.String("provider_id", in.ProviderID.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	now := s.now().UTC()
	created := &AppointmentSlot{
		ID:                  uuid.New(),
		ProviderID:          in.ProviderID,
		Date:                in.Date,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		SlotDurationMinutes: in.DurationMinutes,
		Capacity:            in.Capacity,
		Occupants:           make(map[string][]uuid.UUID),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err = validateSlot(created); err != nil {
		return nil, err
	}
	if err = s.repo.SaveSlot(ctx, created); err != nil {
		return nil, fmt.Errorf("save slot: %w", err)
	}

	s.invalidate(ctx, created.ProviderID)
	s.publish(ctx, slotEvent(events.SlotPublished, created, slotPayload(created)))
	return created, nil
}

// UpdateSlot applies a provider edit. Existing occupants are kept even when
// the new grid no longer contains their time-point.
func (s *Service) UpdateSlot(ctx context.Context, id uuid.UUID, patch SlotPatch) (*AppointmentSlot, error) {
	ctx, span := tracer.Start(ctx, "appointment.UpdateSlot",
		trace.WithAttributes(attribute.String("slot_id", id.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	current, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}

	var changed []string
	if patch.StartTime != nil {
		current.StartTime = *patch.StartTime
		changed = append(changed, "start_time")
	}
	if patch.EndTime != nil {
		current.EndTime = *patch.EndTime
		changed = append(changed, "end_time")
	}
	if patch.DurationMinutes != nil {
		current.SlotDurationMinutes = *patch.DurationMinutes
		changed = append(changed, "duration_minutes")
	}
	if patch.Capacity != nil {
		current.Capacity = *patch.Capacity
		changed = append(changed, "capacity")
	}
	if patch.IsActive != nil {
		current.IsActive = *patch.IsActive
		changed = append(changed, "is_active")
	}
	if err = validateSlot(current); err != nil {
		return nil, err
	}
	current.UpdatedAt = s.now().UTC()

	if err = s.repo.SaveSlot(ctx, current); err != nil {
		return nil, fmt.Errorf("save slot: %w", err)
	}

	if off := current.OffGridTimePoints(); len(off) > 0 {
		s.logger.Info().
			Str("slot_id", current.ID.String()).
			Strs("off_grid", off).
			Msg("slot edit left existing bookings off the new grid")
	}

	payload := slotPayload(current)
	payload["changed"] = strings.Join(changed, ",")
	s.invalidate(ctx, current.ProviderID)
	s.publish(ctx, slotEvent(events.SlotUpdated, current, payload))
	return current, nil
}

func (s *Service) SetSlotActive(ctx context.Context, id uuid.UUID, active bool) (*AppointmentSlot, error) {
	return s.UpdateSlot(ctx, id, SlotPatch{IsActive: &active})
}

// DeleteSlot removes the slot. Appointments that referenced it stay on record.
func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "appointment.DeleteSlot",
		trace.WithAttributes(attribute.String("slot_id", id.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	current, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if err = s.repo.DeleteSlot(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, current.ProviderID)
	s.publish(ctx, slotEvent(events.SlotDeleted, current, slotPayload(current)))
	return nil
}

func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID) ([]AppointmentSlot, error) {
	return s.repo.LoadSlots(ctx, providerID)
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	return s.repo.GetSlot(ctx, id)
}

// GenerateRecurring copies the base slot onto the same weekday for the
// following weeks. Dates where the provider already has a slot with the
// same window are skipped, so repeated calls do not stack duplicates.
func (s *Service) GenerateRecurring(ctx context.Context, baseSlotID uuid.UUID, weekCount int) ([]AppointmentSlot, error) {
	ctx, span := tracer.Start(ctx, "appointment.GenerateRecurring",
		trace.WithAttributes(
			attribute.String("slot_id", baseSlotID.String()),
			attribute.Int("week_count", weekCount),
		))
	var err error
	defer func() { finishSpan(span, err) }()

	base, err := s.repo.GetSlot(ctx, baseSlotID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.recurrence.Expand(*base, weekCount)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.LoadSlots(ctx, base.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[windowKey(&e)] = true
	}

	created := make([]AppointmentSlot, 0, len(candidates))
	err = s.repo.InTx(ctx, func(txCtx context.Context, repo Repository) error {
		for i := range candidates {
			c := &candidates[i]
			if taken[windowKey(c)] {
				continue
			}
			if err := repo.SaveSlot(txCtx, c); err != nil {
				return fmt.Errorf("save generated slot: %w", err)
			}
			created = append(created, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		dates := make([]string, len(created))
		for i := range created {
			dates[i] = FormatDate(created[i].Date)
		}
		s.invalidate(ctx, base.ProviderID)
		s.publish(ctx, slotEvent(events.SlotsGenerated, base, map[string]any{
			"week_count": weekCount,
			"dates":      dates,
		}))
	}
	return created, nil
}

func windowKey(s *AppointmentSlot) string {
	return FormatDate(s.Date) + "|" + s.StartTime + "|" + s.EndTime
}
