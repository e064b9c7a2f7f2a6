package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

type BookRequest struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Date       time.Time
	Time       string
	Payment    PaymentInfo
}

// BookingCoordinator is the only writer of occupant state. Capacity checks and
// the occupant write for one (provider, date, time-point) run under that key's
// lock, so two bookings can never both take the last seat.
type BookingCoordinator struct {
	repo         Repository
	locker       redisclient.Locker
	pendingTTL   time.Duration
	retryBackoff time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

func NewBookingCoordinator(repo Repository, locker redisclient.Locker, pendingTTL, retryBackoff time.Duration, now func() time.Time, logger zerolog.Logger) *BookingCoordinator {
	return &BookingCoordinator{
		repo:         repo,
		locker:       locker,
		pendingTTL:   pendingTTL,
		retryBackoff: retryBackoff,
		now:          now,
		logger:       logger,
	}
}

// lockWithRetry runs fn under key, retrying once after backoff when the
// bounded wait for the lock runs out.
func lockWithRetry(ctx context.Context, locker redisclient.Locker, backoff time.Duration, key string, fn func(ctx context.Context) error) error {
	err := locker.WithLock(ctx, key, fn)
	if !errors.Is(err, redisclient.ErrLockTimeout) {
		return err
	}

	timer := time.NewTimer(backoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return err
	case <-timer.C:
	}

	return locker.WithLock(ctx, key, fn)
}

func normalizeTarget(date time.Time, tp string) (time.Time, string, error) {
	if date.IsZero() {
		return time.Time{}, "", fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	norm, err := slot.NormalizeClock(tp)
	if err != nil {
		return time.Time{}, "", err
	}
	return DateOf(date), norm, nil
}

func (b *BookingCoordinator) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.ProviderID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id and patient_id are required", ErrInvalidRequest)
	}
	date, tp, err := normalizeTarget(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	if req.Payment.Status == "" {
		req.Payment.Status = PaymentUnpaid
	}

	var created *Appointment
	key := redisclient.TimePointKey(req.ProviderID, FormatDate(date), tp)

	err = lockWithRetry(ctx, b.locker, b.retryBackoff, key, func(lockCtx context.Context) error {
		return b.repo.InTx(lockCtx, func(txCtx context.Context, repo Repository) error {
			slots, err := repo.LoadSlotsForDate(txCtx, req.ProviderID, date)
			if err != nil {
				return fmt.Errorf("load slots: %w", err)
			}

			target, err := NewSlotCatalog(req.ProviderID, slots).Resolve(date, tp, uuid.Nil)
			if err != nil {
				return err
			}

			now := b.now().UTC()
			appt := &Appointment{
				ID:            uuid.New(),
				ProviderID:    req.ProviderID,
				PatientID:     req.PatientID,
				SlotID:        target.ID,
				Date:          date,
				Time:          tp,
				Status:        StatusConfirmed,
				PaymentMethod: req.Payment.Method,
				PaymentStatus: req.Payment.Status,
				Amount:        req.Payment.Amount,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if req.Payment.Status != PaymentPaid {
				appt.Status = StatusPending
				expiresAt := now.Add(b.pendingTTL)
				appt.ExpiresAt = &expiresAt
			}

			if err := repo.SaveAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			if err := repo.AddOccupant(txCtx, target.ID, tp, appt.ID); err != nil {
				return fmt.Errorf("record occupant: %w", err)
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug().
		Str("appointment_id", created.ID.String()).
		Str("slot_id", created.SlotID.String()).
		Str("date", FormatDate(date)).
		Str("time", tp).
		Msg("appointment booked")

	return created, nil
}

// Cancel releases the appointment's seat. Cancelling an already cancelled
// appointment is a no-op; changed reports whether anything was written.
func (b *BookingCoordinator) Cancel(ctx context.Context, id uuid.UUID) (appt *Appointment, changed bool, err error) {
	return b.cancelIf(ctx, id, func(a *Appointment) error {
		if a.Status == StatusCompleted || a.Status == StatusMissed {
			return fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidStatusTransition, a.Status)
		}
		return nil
	})
}

// cancelIf cancels under the appointment lock then the time-point lock, after
// guard accepts the freshly loaded appointment.
func (b *BookingCoordinator) cancelIf(ctx context.Context, id uuid.UUID, guard func(*Appointment) error) (*Appointment, bool, error) {
	var result *Appointment
	changed := false

	err := lockWithRetry(ctx, b.locker, b.retryBackoff, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		appt, err := b.repo.LoadAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			result = appt
			return nil
		}
		if err := guard(appt); err != nil {
			return err
		}

		key := redisclient.TimePointKey(appt.ProviderID, FormatDate(appt.Date), appt.Time)
		return lockWithRetry(lockCtx, b.locker, b.retryBackoff, key, func(seatCtx context.Context) error {
			return b.repo.InTx(seatCtx, func(txCtx context.Context, repo Repository) error {
				appt.Status = StatusCancelled
				appt.ExpiresAt = nil
				appt.UpdatedAt = b.now().UTC()

				if err := repo.SaveAppointment(txCtx, appt); err != nil {
					return fmt.Errorf("cancel appointment: %w", err)
				}
				if appt.SlotID != uuid.Nil {
					if err := repo.RemoveOccupant(txCtx, appt.SlotID, appt.ID); err != nil {
						return fmt.Errorf("release occupant: %w", err)
					}
				}
				result = appt
				changed = true
				return nil
			})
		})
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// HardCancel deletes the appointment together with its occupant entry.
func (b *BookingCoordinator) HardCancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var deleted *Appointment

	err := lockWithRetry(ctx, b.locker, b.retryBackoff, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		appt, err := b.repo.LoadAppointment(lockCtx, id)
		if err != nil {
			return err
		}

		key := redisclient.TimePointKey(appt.ProviderID, FormatDate(appt.Date), appt.Time)
		return lockWithRetry(lockCtx, b.locker, b.retryBackoff, key, func(seatCtx context.Context) error {
			return b.repo.InTx(seatCtx, func(txCtx context.Context, repo Repository) error {
				if appt.SlotID != uuid.Nil {
					if err := repo.RemoveOccupant(txCtx, appt.SlotID, appt.ID); err != nil {
						return fmt.Errorf("release occupant: %w", err)
					}
				}
				if err := repo.DeleteAppointment(txCtx, appt.ID); err != nil {
					return err
				}
				deleted = appt
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
