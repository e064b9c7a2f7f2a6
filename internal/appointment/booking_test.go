package appointment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

func TestBookPaidIsConfirmed(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, s.ID, appt.SlotID)
	assert.Nil(t, appt.ExpiresAt)
	assert.Equal(t, 1, f.occupants(t, s.ID, "10:00"))
}

func TestBookUnpaidHoldsSeatUntilExpiry(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", false)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	require.NotNil(t, appt.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *appt.ExpiresAt)
}

func TestBookRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	_, err := f.book(provider, mustDate(t, "2025-03-01"), "25:99", true)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.book(provider, time.Time{}, "10:00", true)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = f.book(uuid.Nil, mustDate(t, "2025-03-01"), "10:00", true)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBookUnknownTimePoint(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	_, err := f.book(provider, mustDate(t, "2025-03-01"), "10:15", true)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = f.book(provider, mustDate(t, "2025-03-02"), "10:00", true)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestBookInactiveSlotIsNotFound(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())
	_, err := f.svc.SetSlotActive(context.Background(), s.ID, false)
	require.NoError(t, err)

	_, err = f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestBookExclusiveSecondIsFull(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	_, err := f.book(provider, date, "10:00", true)
	require.NoError(t, err)
	_, err = f.book(provider, date, "10:00", true)
	assert.ErrorIs(t, err, ErrSlotFull)

	// other time-points in the same window stay open
	_, err = f.book(provider, date, "10:30", true)
	assert.NoError(t, err)
}

func TestBookSharedFillsToLimit(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 60, slot.Shared(10))
	date := mustDate(t, "2025-03-01")

	for i := 0; i < 9; i++ {
		_, err := f.book(provider, date, "10:00", true)
		require.NoError(t, err)
	}

	_, err := f.book(provider, date, "10:00", true)
	require.NoError(t, err)
	assert.Equal(t, 10, f.occupants(t, s.ID, "10:00"))

	_, err = f.book(provider, date, "10:00", true)
	assert.ErrorIs(t, err, ErrSlotFull)
	assert.Equal(t, 10, f.occupants(t, s.ID, "10:00"))
}

func TestConcurrentBookExclusiveLastSeat(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		full    atomic.Int32
		start   = make(chan struct{})
		callers = 2
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.book(provider, date, "09:30", true)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, 1, f.occupants(t, s.ID, "09:30"))
}

func TestConcurrentBookSharedNeverOverbooks(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "10:00", 60, slot.Shared(5))
	date := mustDate(t, "2025-03-01")

	var (
		wg    sync.WaitGroup
		ok    atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.book(provider, date, "09:00", true); err == nil {
				ok.Add(1)
			} else if !errors.Is(err, ErrSlotFull) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, 5, f.occupants(t, s.ID, "09:00"))
}

func TestCancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())
	date := mustDate(t, "2025-03-01")

	first, err := f.book(provider, date, "10:00", true)
	require.NoError(t, err)
	_, err = f.book(provider, date, "10:00", true)
	require.ErrorIs(t, err, ErrSlotFull)

	cancelled, err := f.svc.Cancel(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.occupants(t, s.ID, "10:00"))

	_, err = f.book(provider, date, "10:00", true)
	assert.NoError(t, err)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	again, err := f.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)

	cancels := 0
	for _, typ := range f.events.types() {
		if typ == "APPOINTMENT_CANCELLED" {
			cancels++
		}
	}
	assert.Equal(t, 1, cancels)
}

func TestCancelUnknownAndCompleted(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	_, err := f.svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestHardCancelRemovesRecordAndSeat(t *testing.T) {
	f := newFixture(t)
	provider := uuid.New()
	s := f.publish(t, provider, "2025-03-01", "09:00", "12:00", 30, slot.Exclusive())

	appt, err := f.book(provider, mustDate(t, "2025-03-01"), "10:00", true)
	require.NoError(t, err)

	require.NoError(t, f.svc.HardCancel(context.Background(), appt.ID))
	_, err = f.svc.GetAppointment(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Equal(t, 0, f.occupants(t, s.ID, "10:00"))
}

// flakyLocker times out the first n acquisitions.
type flakyLocker struct {
	inner    redisclient.Locker
	failures atomic.Int32
	calls    atomic.Int32
}

func (l *flakyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.calls.Add(1)
	if l.failures.Load() > 0 {
		l.failures.Add(-1)
		return redisclient.ErrLockTimeout
	}
	return l.inner.WithLock(ctx, key, fn)
}

func TestBookRetriesOnceOnLockTimeout(t *testing.T) {
	repo := NewMemoryRepository()
	locker := &flakyLocker{inner: redisclient.NewLocalLocker(time.Second)}
	svc := NewService(repo, locker, testConfig())

	provider := uuid.New()
	s, err := svc.PublishSlot(context.Background(), SlotInput{
		ProviderID: provider, Date: mustDate(t, "2025-03-01"),
		StartTime: "09:00", EndTime: "10:00", DurationMinutes: 30, Capacity: slot.Exclusive(),
	})
	require.NoError(t, err)

	locker.failures.Store(1)
	_, err = svc.Book(context.Background(), BookRequest{
		ProviderID: provider, PatientID: uuid.New(), Date: s.Date, Time: "09:00",
		Payment: PaymentInfo{Status: PaymentPaid},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), locker.calls.Load())

	locker.calls.Store(0)
	locker.failures.Store(2)
	_, err = svc.Book(context.Background(), BookRequest{
		ProviderID: provider, PatientID: uuid.New(), Date: s.Date, Time: "09:30",
		Payment: PaymentInfo{Status: PaymentPaid},
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, KindConcurrency, KindOf(err))
	assert.Equal(t, int32(2), locker.calls.Load())
}
