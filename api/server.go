/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/courses/*        Course directory and per-course settings
  /api/users/*          User directory, completion history, compliance
  /api/enrolments       Enrolment intake
  /api/completions/*    Completion recording and removal
  /api/equivalents/*    Equivalence links
  /api/sync/*           External HR sync surface
  /api/admin/*          Manual pass triggers and pass audit

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  deploy behind a gateway that terminates auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Course routes
		r.Route("/courses", func(r chi.Router) {
			r.Post("/", h.CreateCourse)
			r.Get("/{id}/settings", h.GetSettings)
			r.Put("/{id}/settings", h.UpdateSettings)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}/completions", h.GetUserCompletions)
			r.Get("/{id}/compliance", h.GetComplianceRate)
		})

		// Enrolment routes
		r.Post("/enrolments", h.CreateEnrolment)

		// Completion routes
		r.Route("/completions", func(r chi.Router) {
			r.Post("/", h.CreateCompletion)
			r.Delete("/{userID}/{courseID}", h.DeleteCompletion)
		})

		// Equivalence routes
		r.Route("/equivalents", func(r chi.Router) {
			r.Get("/", h.ListEquivalents)
			r.Post("/", h.CreateEquivalent)
			r.Delete("/{id}", h.DeleteEquivalent)
		})

		// External sync routes
		r.Route("/sync", func(r chi.Router) {
			r.Get("/out-of-compliance", h.ListOutOfCompliance)
			r.Post("/out-of-compliance/ack", h.AckOutOfCompliance)
			r.Get("/completions", h.ListCompletionSync)
			r.Post("/completions/ack", h.AckCompletionSync)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/passes/{task}", h.TriggerPass)
			r.Get("/tasks/{task}/runs", h.ListTaskRuns)
		})
	})

	return r
}
