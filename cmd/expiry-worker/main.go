package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/app"
	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/logging"
	"github.com/hackgods/consultation-slot-scheduling/internal/telemetry"
)

const serviceName = "scheduling-expiry-worker"

func main() {
	cfg, err := config.Load()
	logger := logging.Init(serviceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Store == config.StoreMemory {
		logger.Fatal().Msg("expiry worker needs a shared store, STORE=memory is not supported")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval.Duration).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(rootCtx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracer init error")
	}

	deps, err := app.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend connection error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := deps.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("backend close error")
		}
		if err := shutdownTracer(ctx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	svc := deps.Service(cfg)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpirePendingAppointments(runCtx)
	if err != nil {
		logger.Error().Err(err).Int("released", n).Msg("expiry run error")
		return
	}
	logger.Info().Int("released", n).Dur("took", time.Since(start)).Msg("expiry run complete")
}
