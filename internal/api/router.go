package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/booking-ledger/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Slots
	r.Post("/slots", publishSlotHandler(cfg.Service))
	r.Post("/slots/{id}/block", blockSlotHandler(cfg.Service))
	r.Get("/doctors/{id}/slots", listOpenSlotsHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", reserveHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	r.Get("/patients/{id}/appointments", listAppointmentsByPatientHandler(cfg.Service))
	r.Get("/doctors/{id}/appointments", listAppointmentsByDoctorHandler(cfg.Service))

	// Ledger
	r.Get("/users/{id}/balance", balanceHandler(cfg.Service))
	r.Get("/users/{id}/ledger", ledgerHistoryHandler(cfg.Service))
	r.Post("/users/{id}/credits", appendCreditHandler(cfg.Service))

	// Payouts
	r.Post("/doctors/{id}/payouts", requestPayoutHandler(cfg.Service))
	r.Get("/doctors/{id}/payouts", listPayoutsHandler(cfg.Service))
	r.Post("/payouts/{id}/processed", markPayoutProcessedHandler(cfg.Service))

	return r
}
