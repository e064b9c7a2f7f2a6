package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
)

// RouterConfig wires the HTTP surface. PgPool and Redis may be nil when the
// service runs on in-process storage; readiness then reports them disabled.
type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/dates", bookableDatesHandler(svc))
		r.Get("/dates/{date}/times", bookableTimesHandler(svc))
		r.Get("/slots", listSlotsHandler(svc))
		r.Post("/slots", publishSlotHandler(svc))
	})

	r.Route("/slots/{id}", func(r chi.Router) {
		r.Patch("/", updateSlotHandler(svc))
		r.Delete("/", deleteSlotHandler(svc))
		r.Post("/recurrences", generateRecurringHandler(svc))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(svc))
		r.Get("/", listAppointmentsHandler(svc))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(svc))
			r.Delete("/", deleteAppointmentHandler(svc))
			r.Post("/cancel", cancelAppointmentHandler(svc))
			r.Post("/confirm", confirmAppointmentHandler(svc))
			r.Post("/complete", completeAppointmentHandler(svc))
			r.Post("/missed", missedAppointmentHandler(svc))
			r.Post("/reschedule", rescheduleAppointmentHandler(svc))
		})
	})

	return r
}
