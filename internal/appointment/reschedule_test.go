package appointment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

func TestRescheduleKeepsFirstOriginal(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	first := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	second := f.publish(t, provider, "2025-03-08", "09:00", "12:00", 60, slot.Exclusive())
	third := f.publish(t, provider, "2025-03-15", "09:00", "12:00", 60, slot.Exclusive())

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(context.Background(), appt.ID, mustDate(t, "2025-03-08"), "11:00")
	require.NoError(t, err)
	require.NotNil(t, moved.OriginalDate)
	require.NotNil(t, moved.OriginalTime)
	assert.Equal(t, "2025-03-01", FormatDate(*moved.OriginalDate))
	assert.Equal(t, "10:00", *moved.OriginalTime)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, StatusRescheduled, moved.Status)
	assert.Equal(t, second.ID, moved.SlotID)
	assert.Equal(t, 0, f.occupants(t, first.ID, "10:00"))
	assert.Equal(t, 1, f.occupants(t, second.ID, "11:00"))

	moved, err = f.svc.Reschedule(context.Background(), appt.ID, mustDate(t, "2025-03-15"), "09:00")
	require.NoError(t, err)
	assert.Equal(t, 2, moved.RescheduleCount)
	assert.Equal(t, "2025-03-01", FormatDate(*moved.OriginalDate))
	assert.Equal(t, "10:00", *moved.OriginalTime)
	assert.Equal(t, 0, f.occupants(t, second.ID, "11:00"))
	assert.Equal(t, 1, f.occupants(t, third.ID, "09:00"))

	stored, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00", stored.Time)
	assert.Equal(t, "2025-03-15", FormatDate(stored.Date))
}

func TestRescheduleTargetFull(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	mover, err := f.book(provider, date, "09:00", true)
	require.NoError(t, err)
	_, err = f.book(provider, date, "10:00", true)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), mover.ID, date, "10:00")
	assert.ErrorIs(t, err, ErrTargetSlotFull)
	assert.Equal(t, KindContention, KindOf(err))

	// nothing moved
	assert.Equal(t, 1, f.occupants(t, s.ID, "09:00"))
	stored, err := f.svc.GetAppointment(context.Background(), mover.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RescheduleCount)
	assert.Nil(t, stored.OriginalDate)
}

func TestRescheduleOntoOwnSeat(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	appt, err := f.book(provider, date, "09:00", true)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(context.Background(), appt.ID, date, "09:00")
	require.NoError(t, err)
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, 1, f.occupants(t, s.ID, "09:00"))
}

func TestRescheduleCancelledIsRejected(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	appt, err := f.book(provider, date, "09:00", true)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, date, "10:00")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, KindState, KindOf(err))
}

func TestRescheduleToMissingTimePoint(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	appt, err := f.book(provider, date, "09:00", true)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, mustDate(t, "2025-04-01"), "09:00")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = f.svc.Reschedule(context.Background(), uuid.New(), date, "10:00")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleFreesOldSeat(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	appt, err := f.book(provider, date, "09:00", true)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(context.Background(), appt.ID, date, "11:00")
	require.NoError(t, err)

	_, err = f.book(provider, date, "09:00", true)
	assert.NoError(t, err)
}

func TestConcurrentRescheduleAndBookLastSeat(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newFixture(t)
		provider := uuid.New()
		from := f.publish(t, provider, "2025-03-01", "09:00", "10:00", 60, slot.Exclusive())
		to := f.publish(t, provider, "2025-03-08", "09:00", "10:00", 60, slot.Exclusive())
		target := mustDate(t, "2025-03-08")

		mover, err := f.book(provider, mustDate(t, "2025-03-01"), "09:00", true)
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			ok    atomic.Int32
			full  atomic.Int32
			start = make(chan struct{})
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Reschedule(context.Background(), mover.ID, target, "09:00")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrTargetSlotFull):
				full.Add(1)
			default:
				t.Errorf("reschedule: unexpected error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			_, err := f.book(provider, target, "09:00", true)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("book: unexpected error: %v", err)
			}
		}()
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), ok.Load(), "round %d", round)
		require.Equal(t, int32(1), full.Load(), "round %d", round)
		require.Equal(t, 1, f.occupants(t, to.ID, "09:00"), "round %d", round)

		// the mover either stayed or left; it never holds both seats
		stored, err := f.svc.GetAppointment(context.Background(), mover.ID)
		require.NoError(t, err)
		if stored.Status == StatusRescheduled {
			require.Equal(t, 0, f.occupants(t, from.ID, "09:00"), "round %d", round)
		} else {
			require.Equal(t, 1, f.occupants(t, from.ID, "09:00"), "round %d", round)
		}
	}
}

func TestConcurrentReschedulesLastSeat(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newFixture(t)
		provider := uuid.New()
		f.publish(t, provider, "2025-03-01", "09:00", "11:00", 60, slot.Exclusive())
		to := f.publish(t, provider, "2025-03-08", "09:00", "10:00", 60, slot.Exclusive())
		date := mustDate(t, "2025-03-01")
		target := mustDate(t, "2025-03-08")

		a, err := f.book(provider, date, "09:00", true)
		require.NoError(t, err)
		b, err := f.book(provider, date, "10:00", true)
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			ok    atomic.Int32
			full  atomic.Int32
			start = make(chan struct{})
		)
		for _, id := range []uuid.UUID{a.ID, b.ID} {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				<-start
				_, err := f.svc.Reschedule(context.Background(), id, target, "09:00")
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ErrTargetSlotFull):
					full.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(id)
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), ok.Load(), "round %d", round)
		require.Equal(t, int32(1), full.Load(), "round %d", round)
		require.Equal(t, 1, f.occupants(t, to.ID, "09:00"), "round %d", round)
	}
}
