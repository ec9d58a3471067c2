// Package handlers is the HTTP surface of the recommendation service.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Dependencies are the collaborators the routes call into.
type Dependencies struct {
	Recommender Recommender
	Tags        TagSource
	Health      HealthProbe
	// CatalogName is reported by the health endpoint ("postgis" or "memory").
	CatalogName string
}

// RouterConfig holds CORS and rate limit settings.
type RouterConfig struct {
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// NewRouter wires middleware and routes:
//
//	POST /api/recommendations
//	GET  /api/health
//	GET  /api/tags
//	GET  /metrics
func NewRouter(deps Dependencies, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Observe, Recover)

	r.NotFound(NotFoundHandler)
	r.MethodNotAllowed(MethodNotAllowedHandler)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthHandler(deps.Health, deps.CatalogName))
		r.Get("/tags", TagsHandler(deps.Tags))

		r.Group(func(r chi.Router) {
			if !cfg.RateLimitDisabled && cfg.RateLimitRequests > 0 {
				r.Use(httprate.Limit(
					cfg.RateLimitRequests,
					cfg.RateLimitWindow,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
					}),
				))
			}
			r.Post("/recommendations", RecommendationsHandler(deps.Recommender))
		})
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})
	return c.Handler(r)
}
