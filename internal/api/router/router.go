package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/skinovation-clinic/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/skinovation-clinic/internal/http/middleware"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Notifications      *handlers.NotificationsHandler
	Schedules          *handlers.SchedulesHandler
	Roster             *handlers.RosterHandler
	History            *handlers.HistoryHandler
	LiveNotifications  http.Handler
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	JWTSecret          string
	CORSAllowedOrigins []string

	// BookingLimiter throttles POST /appointments per caller. Nil disables it.
	BookingLimiter httpmiddleware.Limiter
}

var (
	staff    = []identity.Role{identity.RoleAttendant, identity.RoleOwner, identity.RoleAdmin}
	managers = []identity.Role{identity.RoleOwner, identity.RoleAdmin}
)

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.JWTSecret == "" {
		panic("router: jwt secret required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.Authenticate(cfg.JWTSecret))

		if a := cfg.Appointments; a != nil {
			authed.Get("/attendants/available", a.AvailableAttendants)

			authed.Route("/appointments", func(appts chi.Router) {
				appts.Group(func(patient chi.Router) {
					patient.Use(httpmiddleware.RequireRoles(identity.RolePatient))
					book := http.HandlerFunc(a.Book)
					if cfg.BookingLimiter != nil {
						patient.With(httpmiddleware.RateLimit(cfg.BookingLimiter, logger)).Post("/", book)
					} else {
						patient.Post("/", book)
					}
					patient.Get("/mine", a.ListMine)
					patient.Post("/{id}/cancellation-requests", a.RequestCancellation)
					patient.Post("/{id}/reschedule-requests", a.RequestReschedule)
					patient.Post("/{id}/feedback", a.SubmitFeedback)
				})
				appts.Get("/{id}", a.Get)
				appts.Group(func(s chi.Router) {
					s.Use(httpmiddleware.RequireRoles(staff...))
					s.Get("/", a.List)
					s.Post("/{id}/confirm", a.Confirm)
					s.Post("/{id}/complete", a.Complete)
					s.Post("/{id}/cancel", a.Cancel)
				})
			})

			authed.With(httpmiddleware.RequireRoles(staff...)).Get("/feedback", a.ListFeedback)

			authed.Group(func(m chi.Router) {
				m.Use(httpmiddleware.RequireRoles(managers...))
				m.Get("/cancellation-requests", a.ListCancellationRequests)
				m.Post("/cancellation-requests/{id}/approve", a.ApproveCancellation)
				m.Post("/cancellation-requests/{id}/reject", a.RejectCancellation)
				m.Get("/reschedule-requests", a.ListRescheduleRequests)
				m.Post("/reschedule-requests/{id}/approve", a.ApproveReschedule)
				m.Post("/reschedule-requests/{id}/reject", a.RejectReschedule)
			})
		}

		if s := cfg.Schedules; s != nil {
			authed.With(httpmiddleware.RequireRoles(staff...)).Get("/attendants/{userID}/schedule", s.Get)
			authed.With(httpmiddleware.RequireRoles(managers...)).Put("/attendants/{userID}/schedule", s.Put)
		}

		if ro := cfg.Roster; ro != nil {
			authed.Group(func(m chi.Router) {
				m.Use(httpmiddleware.RequireRoles(managers...))
				m.Get("/roster", ro.List)
				m.Post("/roster", ro.Create)
				m.Delete("/roster/{id}", ro.Delete)
				m.Post("/attendants/{userID}/toggle-active", ro.ToggleActive)
			})
		}

		if h := cfg.History; h != nil {
			authed.With(httpmiddleware.RequireRoles(managers...)).Get("/owner/history", h.List)
		}

		if n := cfg.Notifications; n != nil {
			authed.Route("/notifications", func(notes chi.Router) {
				notes.Get("/", n.List)
				notes.Post("/read-all", n.MarkAllRead)
				notes.Post("/{id}/read", n.MarkRead)
				if cfg.LiveNotifications != nil {
					notes.Handle("/ws", cfg.LiveNotifications)
				}
			})
		}
	})

	return r
}
