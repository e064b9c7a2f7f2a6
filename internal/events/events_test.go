package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("broker down")}

	err := Multi(ok, bad).Publish(context.Background(), Event{Type: AppointmentBooked})
	assert.EqualError(t, err, "broker down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, zerolog.Nop(), 16)

	provider := uuid.New()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Publish(context.Background(), Event{Type: SlotPublished, ProviderID: provider}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 10, rec.count())
	for _, ev := range rec.events {
		assert.False(t, ev.CreatedAt.IsZero())
	}
}

func TestDispatcher_PublishErrorsDoNotStopWorker(t *testing.T) {
	rec := &recorder{err: errors.New("nope")}
	d := NewDispatcher(rec, zerolog.Nop(), 4)

	_ = d.Publish(context.Background(), Event{Type: AppointmentCancelled})
	_ = d.Publish(context.Background(), Event{Type: AppointmentCancelled})

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, rec.count())
}

func TestDispatcher_PublishAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, zerolog.Nop(), 4)

	require.NoError(t, d.Publish(context.Background(), Event{Type: AppointmentBooked}))
	require.NoError(t, d.Close(context.Background()))

	assert.NotPanics(t, func() {
		assert.NoError(t, d.Publish(context.Background(), Event{Type: AppointmentCancelled}))
	})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestDispatcher_ConcurrentPublishAndClose(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, zerolog.Nop(), 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = d.Publish(context.Background(), Event{Type: SlotUpdated})
			}
		}()
	}
	require.NoError(t, d.Close(context.Background()))
	wg.Wait()
	assert.LessOrEqual(t, rec.count(), 400)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "appointment.rescheduled", RoutingKey(AppointmentRescheduled))
	assert.Equal(t, "slots.generated", RoutingKey(SlotsGenerated))
}
