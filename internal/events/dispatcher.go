package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher publishes events from a background worker so request paths never
// wait on the event sinks. When the queue is full the event is dropped.
type Dispatcher struct {
	pub     Publisher
	logger  zerolog.Logger
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(pub Publisher, logger zerolog.Logger, buffer int) *Dispatcher {
	d := &Dispatcher{
		pub:     pub,
		logger:  logger.With().Str("component", "event_dispatcher").Logger(),
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.pub.Publish(ctx, ev); err != nil {
			d.logger.Error().Err(err).Str("event_type", ev.Type).Msg("publish event")
		}
		cancel()
	}
}

// Publish enqueues the event. It never blocks and never fails the caller.
// Events published after Close are dropped.
func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Str("event_type", ev.Type).Msg("dispatcher closed, dropping event")
		return nil
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn().Str("event_type", ev.Type).Msg("event queue full, dropping event")
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
