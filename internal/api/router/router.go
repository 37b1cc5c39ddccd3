package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-booking-engine/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-engine/internal/messaging"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Scheduling    *scheduling.Handler
	Clinic        *clinic.Handler
	Conversations *conversation.Handler
	Webhooks      *messaging.WebhookHandler

	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string

	JWTSecret    string
	AuthDisabled bool

	// APIRateLimit caps /v1 requests per client IP. Zero disables it.
	APIRateLimit rate.Limit
	APIBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.Post("/webhooks/sms/{clinicID}", cfg.Webhooks.TwilioWebhook)
			public.Post("/webhooks/telnyx", cfg.Webhooks.TelnyxWebhook)
		}
	})

	// Tenant-scoped API routes
	r.Route("/v1", func(tenant chi.Router) {
		if cfg.APIRateLimit > 0 {
			tenant.Use(httpmiddleware.RateLimit(cfg.APIRateLimit, cfg.APIBurst))
		}
		tenant.Use(requireClinicID(cfg))

		if h := cfg.Scheduling; h != nil {
			tenant.Get("/availability", h.GetAvailability)
			tenant.Route("/appointments", func(r chi.Router) {
				r.Post("/", h.CreateAppointment)
				r.Get("/", h.ListAppointments)
				r.Get("/{id}", h.GetAppointment)
				r.Patch("/{id}", h.UpdateAppointment)
				r.Delete("/{id}", h.DeleteAppointment)
				r.Get("/{id}/payment", h.GetPayment)
			})
			tenant.Route("/blocks", func(r chi.Router) {
				r.Post("/", h.CreateBlock)
				r.Get("/", h.ListBlocks)
				r.Delete("/{id}", h.DeleteBlock)
			})
			tenant.Get("/working-hours", h.GetWorkingHours)
			tenant.Put("/working-hours", h.PutWorkingHours)
		}

		if cfg.Clinic != nil {
			tenant.Get("/clinic", cfg.Clinic.GetProfile)
			tenant.Put("/clinic", cfg.Clinic.UpdateProfile)
		}

		if cfg.Conversations != nil {
			tenant.Route("/conversations", func(r chi.Router) {
				r.Post("/{phone}/release", cfg.Conversations.ReleaseHandoff)
				r.Get("/jobs/{jobID}", cfg.Conversations.GetJob)
			})
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["failed"] = failed
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
