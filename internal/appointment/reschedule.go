package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
)

// RescheduleCoordinator moves an appointment to another time-point. Only the
// target key is capacity checked; the old seat is released in the same
// transaction that claims the new one.
type RescheduleCoordinator struct {
	repo         Repository
	locker       redisclient.Locker
	retryBackoff time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

func NewRescheduleCoordinator(repo Repository, locker redisclient.Locker, retryBackoff time.Duration, now func() time.Time, logger zerolog.Logger) *RescheduleCoordinator {
	return &RescheduleCoordinator{
		repo:         repo,
		locker:       locker,
		retryBackoff: retryBackoff,
		now:          now,
		logger:       logger,
	}
}

func (c *RescheduleCoordinator) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (*Appointment, error) {
	date, tp, err := normalizeTarget(newDate, newTime)
	if err != nil {
		return nil, err
	}

	var moved *Appointment

	err = lockWithRetry(ctx, c.locker, c.retryBackoff, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		appt, err := c.repo.LoadAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		switch appt.Status {
		case StatusCancelled:
			return ErrAlreadyCancelled
		case StatusCompleted, StatusMissed:
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, appt.Status)
		}

		key := redisclient.TimePointKey(appt.ProviderID, FormatDate(date), tp)
		return lockWithRetry(lockCtx, c.locker, c.retryBackoff, key, func(seatCtx context.Context) error {
			return c.repo.InTx(seatCtx, func(txCtx context.Context, repo Repository) error {
				slots, err := repo.LoadSlotsForDate(txCtx, appt.ProviderID, date)
				if err != nil {
					return fmt.Errorf("load slots: %w", err)
				}

				// The moving appointment never counts against its own target seat.
				target, err := NewSlotCatalog(appt.ProviderID, slots).Resolve(date, tp, appt.ID)
				if errors.Is(err, ErrSlotFull) {
					return ErrTargetSlotFull
				}
				if err != nil {
					return err
				}

				if appt.OriginalDate == nil {
					origDate := appt.Date
					origTime := appt.Time
					appt.OriginalDate = &origDate
					appt.OriginalTime = &origTime
				}

				oldSlot := appt.SlotID
				appt.SlotID = target.ID
				appt.Date = date
				appt.Time = tp
				appt.Status = StatusRescheduled
				appt.RescheduleCount++
				appt.UpdatedAt = c.now().UTC()

				if err := repo.SaveAppointment(txCtx, appt); err != nil {
					return fmt.Errorf("save rescheduled appointment: %w", err)
				}
				if oldSlot != uuid.Nil {
					if err := repo.RemoveOccupant(txCtx, oldSlot, appt.ID); err != nil {
						return fmt.Errorf("release old seat: %w", err)
					}
				}
				if err := repo.AddOccupant(txCtx, target.ID, tp, appt.ID); err != nil {
					return fmt.Errorf("claim new seat: %w", err)
				}

				moved = appt
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("appointment_id", moved.ID.String()).
		Str("date", FormatDate(date)).
		Str("time", tp).
		Int("reschedule_count", moved.RescheduleCount).
		Msg("appointment rescheduled")

	return moved, nil
}
