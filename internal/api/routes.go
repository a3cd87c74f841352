package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the router: middleware, health, and the /api group.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sequences", func(r chi.Router) {
			r.Post("/validate", h.ValidateSequence)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/enroll", h.EnrollSubscribers)
				r.Post("/validate", h.ValidateStoredSequence)
				r.Post("/activate", h.ActivateSequence)
			})
		})

		r.Route("/segments", func(r chi.Router) {
			r.Get("/fields", h.ListSegmentFields)
			r.Get("/{id}/preview", h.PreviewSegment)
		})

		r.Get("/batches/{id}", h.GetBatch)
	})

	return r
}
