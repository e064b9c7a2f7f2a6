package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

const slotColumns = `id, provider_id, slot_date, start_time, end_time, duration_minutes,
	capacity_kind, max_occupants, is_active, created_at, updated_at`

const appointmentColumns = `id, provider_id, patient_id, slot_id, appt_date, appt_time, status,
	original_date, original_time, reschedule_count, payment_method, payment_status, amount,
	expires_at, created_at, updated_at`

// Helpers

func scanSlot(row pgx.Row) (*AppointmentSlot, error) {
	var s AppointmentSlot
	var kind string
	var maxOccupants int

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.SlotDurationMinutes,
		&kind,
		&maxOccupants,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Capacity = slot.Capacity{Kind: slot.Kind(kind)}
	if s.Capacity.Kind == slot.KindShared {
		s.Capacity.MaxOccupants = maxOccupants
	}
	s.Occupants = make(map[string][]uuid.UUID)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID
	var status, paymentStatus string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&slotID,
		&a.Date,
		&a.Time,
		&status,
		&a.OriginalDate,
		&a.OriginalTime,
		&a.RescheduleCount,
		&a.PaymentMethod,
		&paymentStatus,
		&a.Amount,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if slotID != nil {
		a.SlotID = *slotID
	}
	if a.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if a.PaymentStatus, err = ParsePaymentStatus(paymentStatus); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// querySlots loads slots then attaches their live (non-cancelled) occupants.
func (r *PgRepository) querySlots(ctx context.Context, where string, args ...any) ([]AppointmentSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM appointment_slots
		WHERE `+where+`
		ORDER BY slot_date, start_time, created_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var result []AppointmentSlot
	index := make(map[uuid.UUID]int)
	var ids []string
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		index[s.ID] = len(result)
		ids = append(ids, s.ID.String())
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []AppointmentSlot{}, nil
	}

	occRows, err := r.q.Query(ctx, `
		SELECT o.slot_id, o.time_point, o.appointment_id
		FROM slot_occupants o
		JOIN appointments a ON a.id = o.appointment_id
		WHERE o.slot_id = ANY($1::uuid[])
		  AND a.status <> 'cancelled'
		ORDER BY o.created_at
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query occupants: %w", err)
	}
	defer occRows.Close()

	for occRows.Next() {
		var slotID, apptID uuid.UUID
		var tp string
		if err := occRows.Scan(&slotID, &tp, &apptID); err != nil {
			return nil, err
		}
		result[index[slotID]].addOccupant(tp, apptID)
	}
	if err := occRows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) LoadSlots(ctx context.Context, providerID uuid.UUID) ([]AppointmentSlot, error) {
	return r.querySlots(ctx, "provider_id = $1", providerID)
}

func (r *PgRepository) LoadSlotsForDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]AppointmentSlot, error) {
	return r.querySlots(ctx, "provider_id = $1 AND slot_date = $2", providerID, date)
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	slots, err := r.querySlots(ctx, "id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrSlotNotFound
	}
	return &slots[0], nil
}

func (r *PgRepository) SaveSlot(ctx context.Context, s *AppointmentSlot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointment_slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			slot_date        = EXCLUDED.slot_date,
			start_time       = EXCLUDED.start_time,
			end_time         = EXCLUDED.end_time,
			duration_minutes = EXCLUDED.duration_minutes,
			capacity_kind    = EXCLUDED.capacity_kind,
			max_occupants    = EXCLUDED.max_occupants,
			is_active        = EXCLUDED.is_active,
			updated_at       = EXCLUDED.updated_at
	`, s.ID, s.ProviderID, s.Date, s.StartTime, s.EndTime, s.SlotDurationMinutes,
		string(s.Capacity.Kind), s.Capacity.Limit(), s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointment_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) AddOccupant(ctx context.Context, slotID uuid.UUID, timePoint string, appointmentID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO slot_occupants (slot_id, time_point, appointment_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (slot_id, appointment_id) DO UPDATE SET time_point = EXCLUDED.time_point
	`, slotID, timePoint, appointmentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrSlotNotFound
		}
		return fmt.Errorf("add occupant: %w", err)
	}
	return nil
}

func (r *PgRepository) RemoveOccupant(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM slot_occupants WHERE slot_id = $1 AND appointment_id = $2
	`, slotID, appointmentID)
	if err != nil {
		return fmt.Errorf("remove occupant: %w", err)
	}
	return nil
}

func (r *PgRepository) LoadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) SaveAppointment(ctx context.Context, a *Appointment) error {
	var slotID *uuid.UUID
	if a.SlotID != uuid.Nil {
		slotID = &a.SlotID
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			slot_id          = EXCLUDED.slot_id,
			appt_date        = EXCLUDED.appt_date,
			appt_time        = EXCLUDED.appt_time,
			status           = EXCLUDED.status,
			original_date    = COALESCE(appointments.original_date, EXCLUDED.original_date),
			original_time    = COALESCE(appointments.original_time, EXCLUDED.original_time),
			reschedule_count = EXCLUDED.reschedule_count,
			payment_method   = EXCLUDED.payment_method,
			payment_status   = EXCLUDED.payment_status,
			amount           = EXCLUDED.amount,
			expires_at       = EXCLUDED.expires_at,
			updated_at       = EXCLUDED.updated_at
	`, a.ID, a.ProviderID, a.PatientID, slotID, a.Date, a.Time, string(a.Status),
		a.OriginalDate, a.OriginalTime, a.RescheduleCount, a.PaymentMethod, string(a.PaymentStatus),
		a.Amount, a.ExpiresAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("find expired pending: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PgRepository{pool: r.pool, q: tx, inTx: true})
	})
}
