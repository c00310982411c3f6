package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the handler into a chi router with the standard
// middleware stack. requestTimeout bounds every request end to end.
func NewRouter(h *Handler, requestTimeout time.Duration, log *logrus.Entry) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	// Public read API, no credentials involved.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/odds/{sportKey}", h.GetSportOdds)
		r.Get("/sports", h.GetSports)
		r.Get("/providers", h.GetProviders)
		r.Get("/events/{sportKey}", h.GetEvents)
		r.Post("/ingest/trigger", h.TriggerIngest)
	})

	return r
}
