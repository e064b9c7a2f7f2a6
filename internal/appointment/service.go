package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/events"
	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	datesField = "dates"
)

var tracer = otel.Tracer("github.com/hackgods/consultation-slot-scheduling/internal/appointment")

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cache  redisclient.Cache
	events events.Publisher
	logger zerolog.Logger
	now    func() time.Time
	cfg    config.Config

	booking    *BookingCoordinator
	reschedule *RescheduleCoordinator
	recurrence *RecurrenceExpander
}

type Option func(*Service)

// WithCache enables the derived availability cache. Without it every read
// recomputes from the repository.
func WithCache(c redisclient.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		events: events.Nop(),
		logger: zerolog.Nop(),
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := s.logger.With().Str("component", "appointment").Logger()
	s.logger = logger
	s.booking = NewBookingCoordinator(repo, locker, cfg.AppointmentTTL.Duration, cfg.LockRetryBackoff.Duration, s.now, logger)
	s.reschedule = NewRescheduleCoordinator(repo, locker, cfg.LockRetryBackoff.Duration, s.now, logger)
	s.recurrence = NewRecurrenceExpander(s.now)
	return s
}

// finishSpan records failures that are not ordinary business outcomes.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		switch KindOf(err) {
		case KindInternal, KindConcurrency:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetAttributes(attribute.String("outcome", string(KindOf(err))))
		}
	}
	span.End()
}

func (s *Service) logFailure(err error, op string, fields map[string]any) {
	var ev *zerolog.Event
	switch KindOf(err) {
	case KindInternal:
		ev = s.logger.Error()
	case KindConcurrency:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Debug()
	}
	ev.Err(err).Str("op", op).Fields(fields).Msg("operation failed")
}

func (s *Service) invalidate(ctx context.Context, providerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, providerID); err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache invalidate failed")
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("event publish failed")
	}
}

func appointmentEvent(eventType string, appt *Appointment, payload map[string]any) events.Event {
	apptID := appt.ID
	ev := events.Event{
		Type:          eventType,
		ProviderID:    appt.ProviderID,
		AppointmentID: &apptID,
		Payload:       payload,
	}
	if appt.SlotID != uuid.Nil {
		slotID := appt.SlotID
		ev.SlotID = &slotID
	}
	return ev
}

func (s *Service) cached(ctx context.Context, providerID uuid.UUID, field string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, providerID, field)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn().Err(err).Str("field", field).Msg("availability cache entry unreadable")
		return false
	}
	return true
}

// viewVersion returns the cache version to hand to store, or -1 when the
// view must not be cached.
func (s *Service) viewVersion(ctx context.Context, providerID uuid.UUID) int64 {
	if s.cache == nil {
		return -1
	}
	v, err := s.cache.Version(ctx, providerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache version read failed")
		return -1
	}
	return v
}

func (s *Service) store(ctx context.Context, providerID uuid.UUID, version int64, field string, v any) {
	if s.cache == nil || version < 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	stored, err := s.cache.Set(ctx, providerID, version, field, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache write failed")
		return
	}
	if !stored {
		s.logger.Debug().Str("provider_id", providerID.String()).Str("field", field).Msg("availability view superseded, not cached")
	}
}

// GetBookableDates lists dates with at least one active slot for the provider.
func (s *Service) GetBookableDates(ctx context.Context, providerID uuid.UUID) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "appointment.GetBookableDates",
		trace.WithAttributes(attribute.String("provider_id", providerID.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	var cached []string
	if s.cached(ctx, providerID, datesField, &cached) {
		dates := make([]time.Time, 0, len(cached))
		for _, raw := range cached {
			d, perr := ParseDate(raw)
			if perr != nil {
				continue
			}
			dates = append(dates, d)
		}
		return dates, nil
	}

	version := s.viewVersion(ctx, providerID)
	slots, err := s.repo.LoadSlots(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	dates := NewSlotCatalog(providerID, slots).BookableDates()

	raw := make([]string, len(dates))
	for i, d := range dates {
		raw[i] = FormatDate(d)
	}
	s.store(ctx, providerID, version, datesField, raw)

	return dates, nil
}

// GetBookableTimePoints lists open time-points for the provider on date.
func (s *Service) GetBookableTimePoints(ctx context.Context, providerID uuid.UUID, date time.Time) ([]TimePointAvailability, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	date = DateOf(date)
	field := FormatDate(date)

	ctx, span := tracer.Start(ctx, "appointment.GetBookableTimePoints",
		trace.WithAttributes(
			attribute.String("provider_id", providerID.String()),
			attribute.String("date", field),
		))
	var err error
	defer func() { finishSpan(span, err) }()

	var cached []TimePointAvailability
	if s.cached(ctx, providerID, field, &cached) {
		return cached, nil
	}

	version := s.viewVersion(ctx, providerID)
	slots, err := s.repo.LoadSlotsForDate(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	points := NewSlotCatalog(providerID, slots).BookableTimePointsFor(date)
	s.store(ctx, providerID, version, field, points)

	return points, nil
}

func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Book",
		trace.WithAttributes(
			attribute.String("provider_id", req.ProviderID.String()),
			attribute.String("time", req.Time),
		))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, err := s.booking.Book(ctx, req)
	if err != nil {
		s.logFailure(err, "book", map[string]any{
			"provider_id": req.ProviderID.String(),
			"date":        FormatDate(req.Date),
			"time":        req.Time,
		})
		return nil, err
	}

	s.invalidate(ctx, appt.ProviderID)
	s.publish(ctx, appointmentEvent(events.AppointmentBooked, appt, map[string]any{
		"patient_id": appt.PatientID.String(),
		"date":       FormatDate(appt.Date),
		"time":       appt.Time,
		"status":     string(appt.Status),
	}))
	return appt, nil
}

// Cancel is idempotent: cancelling a cancelled appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Cancel",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, changed, err := s.booking.Cancel(ctx, id)
	if err != nil {
		s.logFailure(err, "cancel", map[string]any{"appointment_id": id.String()})
		return nil, err
	}
	if changed {
		s.invalidate(ctx, appt.ProviderID)
		s.publish(ctx, appointmentEvent(events.AppointmentCancelled, appt, nil))
	}
	return appt, nil
}

// HardCancel removes the appointment record entirely.
func (s *Service) HardCancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "appointment.HardCancel",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, err := s.booking.HardCancel(ctx, id)
	if err != nil {
		s.logFailure(err, "hard_cancel", map[string]any{"appointment_id": id.String()})
		return err
	}
	s.invalidate(ctx, appt.ProviderID)
	s.publish(ctx, appointmentEvent(events.AppointmentDeleted, appt, nil))
	return nil
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule",
		trace.WithAttributes(
			attribute.String("appointment_id", id.String()),
			attribute.String("time", newTime),
		))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, err := s.reschedule.Reschedule(ctx, id, newDate, newTime)
	if err != nil {
		s.logFailure(err, "reschedule", map[string]any{
			"appointment_id": id.String(),
			"date":           FormatDate(newDate),
			"time":           newTime,
		})
		return nil, err
	}

	s.invalidate(ctx, appt.ProviderID)
	payload := map[string]any{
		"date":             FormatDate(appt.Date),
		"time":             appt.Time,
		"reschedule_count": appt.RescheduleCount,
	}
	if appt.OriginalDate != nil {
		payload["original_date"] = FormatDate(*appt.OriginalDate)
	}
	if appt.OriginalTime != nil {
		payload["original_time"] = *appt.OriginalTime
	}
	s.publish(ctx, appointmentEvent(events.AppointmentRescheduled, appt, payload))
	return appt, nil
}

// transition applies a status change under the appointment lock. Occupancy
// is untouched; only cancellation releases a seat.
func (s *Service) transition(ctx context.Context, id uuid.UUID, op string, apply func(a *Appointment, now time.Time) error) (*Appointment, error) {
	var result *Appointment
	err := lockWithRetry(ctx, s.locker, s.cfg.LockRetryBackoff.Duration, redisclient.AppointmentKey(id), func(lockCtx context.Context) error {
		appt, err := s.repo.LoadAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := apply(appt, now); err != nil {
			return err
		}
		appt.UpdatedAt = now
		if err := s.repo.SaveAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		result = appt
		return nil
	})
	if err != nil {
		s.logFailure(err, op, map[string]any{"appointment_id": id.String()})
		return nil, err
	}
	return result, nil
}

// Confirm marks a pending or rescheduled appointment as confirmed and paid.
// A pending hold past its expiry is released instead.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Confirm",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, err := s.transition(ctx, id, "confirm", func(a *Appointment, now time.Time) error {
		switch a.Status {
		case StatusPending, StatusRescheduled:
		default:
			return fmt.Errorf("%w: cannot confirm a %s appointment", ErrInvalidStatusTransition, a.Status)
		}
		if a.Status == StatusPending && a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
			return ErrAppointmentExpired
		}
		a.Status = StatusConfirmed
		a.PaymentStatus = PaymentPaid
		a.ExpiresAt = nil
		return nil
	})
	if errors.Is(err, ErrAppointmentExpired) {
		if _, expErr := s.expire(ctx, id); expErr != nil {
			s.logger.Warn().Err(expErr).Str("appointment_id", id.String()).Msg("release of expired hold failed")
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, appointmentEvent(events.AppointmentConfirmed, appt, nil))
	return appt, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusCompleted, events.AppointmentCompleted)
}

func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusMissed, events.AppointmentMissed)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, status AppointmentStatus, eventType string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Finish",
		trace.WithAttributes(
			attribute.String("appointment_id", id.String()),
			attribute.String("status", string(status)),
		))
	var err error
	defer func() { finishSpan(span, err) }()

	appt, err := s.transition(ctx, id, string(status), func(a *Appointment, _ time.Time) error {
		switch a.Status {
		case StatusPending, StatusConfirmed, StatusRescheduled:
		default:
			return fmt.Errorf("%w: cannot mark a %s appointment %s", ErrInvalidStatusTransition, a.Status, status)
		}
		a.Status = status
		a.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, appointmentEvent(eventType, appt, nil))
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.LoadAppointment(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// expire cancels id only if it is still a pending hold past its expiry.
func (s *Service) expire(ctx context.Context, id uuid.UUID) (bool, error) {
	now := s.now().UTC()
	appt, changed, err := s.booking.cancelIf(ctx, id, func(a *Appointment) error {
		if a.Status != StatusPending || a.ExpiresAt == nil || !now.After(*a.ExpiresAt) {
			return errNotExpired
		}
		return nil
	})
	if errors.Is(err, errNotExpired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		s.invalidate(ctx, appt.ProviderID)
		s.publish(ctx, appointmentEvent(events.AppointmentExpired, appt, map[string]any{
			"expired_at": now,
		}))
	}
	return changed, nil
}

var errNotExpired = errors.New("appointment is not an expired hold")

// ExpirePendingAppointments releases every unpaid hold whose expiry has
// passed and returns how many were released.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.ExpirePendingAppointments")
	var err error
	defer func() { finishSpan(span, err) }()

	expired, err := s.repo.FindExpiredPending(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("find expired: %w", err)
	}

	released := 0
	var errs []error
	for _, appt := range expired {
		ok, expErr := s.expire(ctx, appt.ID)
		if expErr != nil {
			if errors.Is(expErr, ErrAppointmentNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire %s: %w", appt.ID, expErr))
			continue
		}
		if ok {
			released++
		}
	}
	err = errors.Join(errs...)

	if released > 0 {
		s.logger.Info().Int("count", released).Msg("expired pending appointments")
	}
	return released, err
}
