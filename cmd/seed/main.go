package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/app"
	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
	"github.com/hackgods/consultation-slot-scheduling/internal/config"
	"github.com/hackgods/consultation-slot-scheduling/internal/logging"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

var (
	windows = []struct{ start, end string }{
		{"08:00", "12:00"},
		{"09:00", "13:00"},
		{"13:00", "17:00"},
		{"14:00", "18:30"},
	}
	durations      = []int{15, 20, 30, 45, 60}
	paymentMethods = []string{"card", "pix", "cash", "insurance"}
)

func main() {
	providers := flag.Int("providers", 20, "number of providers to create")
	days := flag.Int("days", 5, "consecutive days of base slots per provider")
	weeks := flag.Int("weeks", 4, "weekly recurrences generated from each base slot")
	bookings := flag.Int("bookings", 10, "booking attempts per provider")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.Init("scheduling-seed", cfg.Env, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend connection error")
	}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("backend close error")
		}
	}()

	svc := deps.Service(cfg)
	gofakeit.Seed(time.Now().UnixNano())

	logger.Info().Int("providers", *providers).Msg("seed starting")

	var total seedStats
	for i := 0; i < *providers; i++ {
		providerID := uuid.New()
		stats, err := seedProvider(ctx, svc, logger, providerID, *days, *weeks, *bookings)
		if err != nil {
			logger.Fatal().Err(err).Str("provider_id", providerID.String()).Msg("seed provider")
		}
		total.add(stats)
	}

	logger.Info().
		Int("slots", total.slots).
		Int("generated", total.generated).
		Int("booked", total.booked).
		Int("full", total.full).
		Msg("seed complete")
}

type seedStats struct {
	slots, generated, booked, full int
}

func (s *seedStats) add(o seedStats) {
	s.slots += o.slots
	s.generated += o.generated
	s.booked += o.booked
	s.full += o.full
}

func randomCapacity() slot.Capacity {
	if gofakeit.Bool() {
		return slot.Exclusive()
	}
	return slot.Shared(gofakeit.Number(2, 12))
}

func seedProvider(ctx context.Context, svc *appointment.Service, logger zerolog.Logger, providerID uuid.UUID, days, weeks, bookings int) (seedStats, error) {
	var stats seedStats
	today := appointment.DateOf(time.Now())

	var published []*appointment.AppointmentSlot
	for d := 1; d <= days; d++ {
		w := windows[gofakeit.Number(0, len(windows)-1)]
		s, err := svc.PublishSlot(ctx, appointment.SlotInput{
			ProviderID:      providerID,
			Date:            today.AddDate(0, 0, d),
			StartTime:       w.start,
			EndTime:         w.end,
			DurationMinutes: durations[gofakeit.Number(0, len(durations)-1)],
			Capacity:        randomCapacity(),
		})
		if err != nil {
			return stats, err
		}
		published = append(published, s)
		stats.slots++

		generated, err := svc.GenerateRecurring(ctx, s.ID, weeks)
		if err != nil {
			return stats, err
		}
		stats.generated += len(generated)
	}

	for i := 0; i < bookings; i++ {
		s := published[gofakeit.Number(0, len(published)-1)]
		points := s.TimePoints()
		tp := points[gofakeit.Number(0, len(points)-1)]

		status := appointment.PaymentUnpaid
		if gofakeit.Number(1, 10) <= 7 {
			status = appointment.PaymentPaid
		}

		_, err := svc.Book(ctx, appointment.BookRequest{
			ProviderID: providerID,
			PatientID:  uuid.New(),
			Date:       s.Date,
			Time:       tp,
			Payment: appointment.PaymentInfo{
				Method: paymentMethods[gofakeit.Number(0, len(paymentMethods)-1)],
				Status: status,
				Amount: int64(gofakeit.Number(80, 450)) * 100,
			},
		})
		switch {
		case err == nil:
			stats.booked++
		case errors.Is(err, appointment.ErrSlotFull):
			stats.full++
		default:
			return stats, err
		}
	}

	logger.Debug().
		Str("provider_id", providerID.String()).
		Str("name", gofakeit.Name()).
		Int("booked", stats.booked).
		Msg("provider seeded")
	return stats, nil
}
