package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type RouterConfig struct {
	Bookings     BookingService
	Calendars    CalendarService
	Health       *HealthHandler
	JWTSecret    string
	RateLimitRPS int
	CORSOrigins  []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserIDHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate([]byte(cfg.JWTSecret)))

		// Appointment endpoints; {id} is the doctor for /book
		r.Post("/appointments/{id}/book", bookAppointmentHandler(cfg.Bookings))
		r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/checkout", checkoutHandler(cfg.Bookings))

		// Doctor calendar endpoints
		r.Get("/doctors/{id}/availability", getAvailabilityHandler(cfg.Calendars))
		r.Patch("/doctors/{id}/schedule", setScheduleHandler(cfg.Bookings, cfg.Calendars))
		r.Patch("/doctors/{id}/schedule/entry", updateScheduleEntryHandler(cfg.Bookings, cfg.Calendars))
		r.Post("/doctors/{id}/unavailability", addUnavailabilityHandler(cfg.Bookings, cfg.Calendars))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route_not_found", r.Method+" "+r.URL.Path)
	})

	return r
}
