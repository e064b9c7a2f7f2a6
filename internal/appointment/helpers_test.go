package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/events"
	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func testConfig() config.Config {
	return config.Config{
		AppointmentTTL:   config.Duration{Duration: 10 * time.Minute},
		LockRetryBackoff: config.Duration{Duration: time.Millisecond},
	}
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepository
	clock  *fakeClock
	events *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:   NewMemoryRepository(),
		clock:  newFakeClock(time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)),
		events: &recorder{},
	}
	opts = append([]Option{WithClock(f.clock.Now), WithPublisher(f.events)}, opts...)
	f.svc = NewService(f.repo, redisclient.NewLocalLocker(time.Second), testConfig(), opts...)
	return f
}

func mustDate(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := ParseDate(v)
	require.NoError(t, err)
	return d
}

func (f *fixture) publish(t *testing.T, provider uuid.UUID, date, start, end string, dur int, capacity slot.Capacity) *AppointmentSlot {
	t.Helper()
	s, err := f.svc.PublishSlot(context.Background(), SlotInput{
		ProviderID:      provider,
		Date:            mustDate(t, date),
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: dur,
		Capacity:        capacity,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) book(provider uuid.UUID, date time.Time, tp string, paid bool) (*Appointment, error) {
	payment := PaymentInfo{Method: "card", Status: PaymentUnpaid, Amount: 5000}
	if paid {
		payment.Status = PaymentPaid
	}
	return f.svc.Book(context.Background(), BookRequest{
		ProviderID: provider,
		PatientID:  uuid.New(),
		Date:       date,
		Time:       tp,
		Payment:    payment,
	})
}

func (f *fixture) occupants(t *testing.T, slotID uuid.UUID, tp string) int {
	t.Helper()
	s, err := f.repo.GetSlot(context.Background(), slotID)
	require.NoError(t, err)
	return len(s.Occupants[tp])
}
