// Package app assembles the storage, locking, cache and event backends
// selected by configuration. Every binary under cmd/ starts from Open.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/db"
	"github.com/hackgods/consultation-slot-scheduling/internal/events"
	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
)

const eventBuffer = 1024

type Deps struct {
	Pg     *pgxpool.Pool // nil with STORE=memory
	Redis  *redis.Client // nil when nothing needs redis
	Repo   appointment.Repository
	Locker redisclient.Locker
	Cache  redisclient.Cache // nil without redis
	Events *events.Dispatcher

	logger  zerolog.Logger
	closers []func(context.Context) error
}

// Open connects every configured backend. On failure whatever was already
// opened is closed again.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *Deps, err error) {
	d := &Deps{logger: logger}
	defer func() {
		if err != nil {
			_ = d.Close(context.Background())
		}
	}()

	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		d.Pg, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { d.Pg.Close(); return nil })
		if err = db.Migrate(ctx, d.Pg); err != nil {
			return nil, err
		}
		d.Repo = appointment.NewPgRepository(d.Pg)
		logger.Info().Msg("connected to postgres")
	default:
		d.Repo = appointment.NewMemoryRepository()
		logger.Warn().Msg("using in-memory store, data is lost on exit")
	}

	if cfg.UsesRedis() {
		d.Redis, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return d.Redis.Close() })
		d.Cache = redisclient.NewAvailabilityCache(d.Redis, cfg.AvailabilityCacheTTL.Duration)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	if cfg.Locker == config.LockerRedis {
		d.Locker = redisclient.NewRedisLocker(d.Redis, cfg.LockTTL.Duration, cfg.LockWait.Duration)
	} else {
		d.Locker = redisclient.NewLocalLocker(cfg.LockWait.Duration)
		logger.Warn().Msg("using in-process locker, run a single instance only")
	}

	var pubs []events.Publisher
	if d.Pg != nil {
		pubs = append(pubs, events.NewPgPublisher(d.Pg))
	}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return amqpPub.Close() })
		pubs = append(pubs, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to amqp")
	}
	d.Events = events.NewDispatcher(events.Multi(pubs...), logger, eventBuffer)
	// Drained first so queued events still reach postgres and the broker.
	d.closers = append(d.closers, d.Events.Close)

	return d, nil
}

// Service builds the appointment service on top of the opened backends.
func (d *Deps) Service(cfg config.Config, opts ...appointment.Option) *appointment.Service {
	base := []appointment.Option{
		appointment.WithLogger(d.logger),
		appointment.WithPublisher(d.Events),
	}
	if d.Cache != nil {
		base = append(base, appointment.WithCache(d.Cache))
	}
	return appointment.NewService(d.Repo, d.Locker, cfg, append(base, opts...)...)
}

// Close releases backends in reverse order of opening.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
