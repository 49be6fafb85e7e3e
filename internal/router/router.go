package router

import (
	"net/http"

	"ems-dispatch-api/internal/handler"
	"ems-dispatch-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	SessionHandler *handler.SessionHandler
	RosterHandler  *handler.RosterHandler
	CallHandler    *handler.CallHandler
	AdminHandler   *handler.AdminHandler
	FeedHandler    http.HandlerFunc
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// Live dispatch feed - MDT clients connect here
	if cfg.FeedHandler != nil {
		r.Get("/ws", cfg.FeedHandler)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Player sessions
			if cfg.SessionHandler != nil {
				r.Post("/session", cfg.SessionHandler.Connect)
				r.Delete("/session", cfg.SessionHandler.Disconnect)
			}

			// Roster endpoints
			if cfg.RosterHandler != nil {
				r.Route("/roster", func(r chi.Router) {
					r.Get("/", cfg.RosterHandler.List)
					r.Get("/ranks", cfg.RosterHandler.Ranks)
					r.Route("/{player_id}", func(r chi.Router) {
						r.Get("/", cfg.RosterHandler.Get)
						r.Post("/duty", cfg.RosterHandler.SetDuty)
						r.Post("/rank", cfg.RosterHandler.SetRank)
						r.Post("/position", cfg.RosterHandler.SetPosition)
					})
				})
			}

			// Emergency call endpoints
			if cfg.CallHandler != nil {
				r.Route("/calls", func(r chi.Router) {
					r.Post("/", cfg.CallHandler.Create)
					r.Get("/", cfg.CallHandler.List)
					r.Route("/{call_id}", func(r chi.Router) {
						r.Get("/", cfg.CallHandler.Get)
						r.Post("/assign", cfg.CallHandler.Assign)
						r.Post("/respond", cfg.CallHandler.Respond)
						r.Post("/complete", cfg.CallHandler.Complete)
						r.Post("/cancel", cfg.CallHandler.Cancel)
					})
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/history", cfg.AdminHandler.GetHistory)
					r.Post("/payroll", cfg.AdminHandler.RunPayroll)
					r.Post("/login", cfg.AdminHandler.VerifyLogin)
				})
			}
		})
	})

	return r
}
