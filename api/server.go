/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests

ROUTE GROUPS:
  /api/systems, /api/variables, /api/parameters/*   Introspection
  /api/calculate, /api/compare                      Evaluation
  /api/runs/*, /api/reset, /api/scenarios/*        Stored batches (with a store)
  /metrics                                          Prometheus

SECURITY NOTE:
  No authentication middleware. All endpoints are public, including reset.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tune the router.
type Options struct {
	// AllowedOrigins for CORS. Defaults to local development origins.
	AllowedOrigins []string

	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	if opts.RequestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/systems", h.ListSystems)
		r.Get("/variables", h.ListVariables)
		r.Get("/parameters/{path}", h.GetParameter)

		r.Post("/calculate", h.Calculate)
		r.Post("/compare", h.Compare)

		if h.Store != nil {
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.ListRuns)
				r.Post("/", h.RunStored)
				r.Get("/{id}", h.GetRun)
			})
			r.Post("/reset", h.ResetDatabase)
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
